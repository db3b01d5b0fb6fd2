//go:build integration

package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// newDoltStore starts a Dolt sql-server container and opens the store on it
// through the MySQL dialect.
func newDoltStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	ctr, err := dolt.Run(ctx, "dolthub/dolt-sql-server:1.43.0",
		dolt.WithDatabase("workgraph"),
		dolt.WithUsername("workgraph"),
		dolt.WithPassword("workgraph"),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start dolt container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	s, err := Open(ctx, Config{Dialect: DialectMySQL, DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDoltTemplateAndInstanceLifecycle(t *testing.T) {
	s := newDoltStore(t)
	ctx := context.Background()

	g := &types.TemplateGraph{
		Template: &types.Template{TenantID: "t1", Name: "Release"},
		Nodes: []*types.TemplateNode{
			{ID: "build", Title: "Build"},
			{ID: "ship", Title: "Ship"},
		},
		Edges: []*types.TemplateEdge{{DependentID: "ship", PrerequisiteID: "build"}},
	}
	if err := s.CreateTemplateGraph(ctx, g); err != nil {
		t.Fatalf("CreateTemplateGraph: %v", err)
	}
	got, err := s.GetTemplateGraph(ctx, g.Template.ID)
	if err != nil {
		t.Fatalf("GetTemplateGraph: %v", err)
	}
	if len(got.Nodes) != 2 || len(got.Edges) != 1 {
		t.Fatalf("template graph = %d nodes, %d edges", len(got.Nodes), len(got.Edges))
	}

	inst := &types.Instance{TenantID: "t1", Title: "v1.0", CreatedBy: "u1"}
	a := &types.InstanceNode{Title: "Build", Kind: types.KindTask, Status: types.StatusDone}
	b := &types.InstanceNode{Title: "Ship", Kind: types.KindTask, Status: types.StatusLocked}
	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		a.InstanceID, b.InstanceID = inst.ID, inst.ID
		if err := tx.CreateNodes(ctx, []*types.InstanceNode{a, b}); err != nil {
			return err
		}
		if err := tx.CreateEdges(ctx, []*types.InstanceEdge{
			{InstanceID: inst.ID, DependentID: b.ID, PrerequisiteID: a.ID},
		}); err != nil {
			return err
		}
		return tx.BumpGraphVersion(ctx, inst.ID, 0)
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	// Same-value update must still count as a matched row.
	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateNodeStatus(ctx, a.ID, types.StatusDone)
	})
	if err != nil {
		t.Fatalf("no-op update: %v", err)
	}

	page, err := s.ListInstances(ctx, types.InstanceFilter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if page.Total != 1 || page.Items[0].DoneCount != 1 || page.Items[0].LockedCount != 1 {
		t.Fatalf("page = %+v", page.Items)
	}
	if page.Items[0].GraphVersion != 1 {
		t.Errorf("graph version = %d", page.Items[0].GraphVersion)
	}

	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.BumpGraphVersion(ctx, inst.ID, 0)
	})
	if !errors.Is(err, storage.ErrGraphConflict) {
		t.Errorf("stale bump err = %v, want ErrGraphConflict", err)
	}
}
