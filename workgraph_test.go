package workgraph_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/steveyegge/workgraph"
)

func TestOpenSQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, store, err := workgraph.OpenSQLite(ctx, filepath.Join(t.TempDir(), "wg.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	mgr := workgraph.TenantContext{UserID: "mgr", TenantID: "acme", Role: workgraph.RoleManager}
	tpl, err := svc.ImportTemplate(ctx, mgr, &workgraph.TemplateGraph{
		Template: &workgraph.Template{Name: "release"},
		Nodes: []*workgraph.TemplateNode{
			{ID: "build", Title: "Build"},
			{ID: "ship", Title: "Ship"},
		},
		Edges: []*workgraph.TemplateEdge{{DependentID: "ship", PrerequisiteID: "build"}},
	})
	if err != nil {
		t.Fatalf("ImportTemplate: %v", err)
	}

	res, err := svc.Instantiate(ctx, mgr, workgraph.InstantiateRequest{TemplateID: tpl.ID, Title: "v1.0"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	var build, ship string
	for _, n := range res.Nodes {
		switch n.Title {
		case "Build":
			build = n.ID
		case "Ship":
			ship = n.ID
		}
	}

	_, err = svc.AddEdge(ctx, mgr, build, ship)
	if !errors.Is(err, workgraph.ErrCycleDetected) {
		t.Errorf("reverse edge err = %v, want ErrCycleDetected", err)
	}

	change, err := svc.UpdateNodeStatus(ctx, mgr, build, workgraph.StatusDone)
	if err != nil {
		t.Fatalf("UpdateNodeStatus: %v", err)
	}
	if len(change.Cascaded) != 1 || change.Cascaded[0].NewStatus != workgraph.StatusOpen {
		t.Errorf("cascaded = %+v", change.Cascaded)
	}
}
