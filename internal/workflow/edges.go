package workflow

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/graph"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// EdgeResult describes an accepted prerequisite edge.
type EdgeResult struct {
	Edge *types.InstanceEdge `json:"edge"`
	// Locked is set when the dependent was forced to LOCKED by the new edge.
	Locked bool `json:"locked"`
	// Existing is set when the edge was already present; nothing changed.
	Existing bool `json:"existing,omitempty"`
}

// AddEdge makes dependentID wait for prerequisiteID. Both nodes must be in the
// same instance of the caller's tenant; any member of that tenant may add the
// edge. The edge is refused if it names a node as its own prerequisite or
// would close a cycle; in both cases nothing is written. If neither node is
// DONE the dependent is forced to LOCKED.
func (s *Service) AddEdge(ctx context.Context, tc types.TenantContext, dependentID, prerequisiteID string) (res *EdgeResult, err error) {
	ctx, end := s.span(ctx, "AddEdge",
		attribute.String("wg.node.dependent", dependentID),
		attribute.String("wg.node.prerequisite", prerequisiteID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if dependentID == "" || prerequisiteID == "" {
		return nil, invalidArg("both dependent and prerequisite ids are required")
	}
	if dependentID == prerequisiteID {
		return nil, fmt.Errorf("%w: %s", ErrSelfDependency, dependentID)
	}

	err = s.mutate(ctx, func(tx storage.Transaction) error {
		dep, inst, err := loadNode(ctx, tx, tc, dependentID)
		if err != nil {
			return err
		}
		pre, err := tx.GetNode(ctx, prerequisiteID)
		if err != nil {
			return err
		}
		if err := checkSameGraph(ctx, tx, tc, inst, pre); err != nil {
			return err
		}
		res, err = s.addEdgeInTx(ctx, tx, tc, inst, dep, pre)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// checkSameGraph verifies pre belongs to inst. A node of another tenant or of
// another instance is a TenantMismatch.
func checkSameGraph(ctx context.Context, tx storage.Transaction, tc types.TenantContext, inst *types.Instance, pre *types.InstanceNode) error {
	if pre.InstanceID == inst.ID {
		return nil
	}
	other, err := tx.GetInstance(ctx, pre.InstanceID)
	if err != nil {
		return err
	}
	if !access.SameTenant(tc, other.TenantID) {
		return fmt.Errorf("%w: prerequisite %s belongs to another tenant", ErrTenantMismatch, pre.ID)
	}
	return fmt.Errorf("%w: prerequisite %s belongs to instance %s, not %s", ErrTenantMismatch, pre.ID, pre.InstanceID, inst.ID)
}

// addEdgeInTx runs the cycle check against a fresh read of the edge set,
// inserts the edge and advances the instance's graph version. A concurrent
// insertion that committed first makes the version check fail with
// storage.ErrGraphConflict, and the store re-runs the whole transaction.
func (s *Service) addEdgeInTx(ctx context.Context, tx storage.Transaction, tc types.TenantContext, inst *types.Instance, dep, pre *types.InstanceNode) (*EdgeResult, error) {
	g, err := graph.Load(ctx, tx, inst.ID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(g[dep.ID], pre.ID) {
		return &EdgeResult{
			Edge:     &types.InstanceEdge{InstanceID: inst.ID, DependentID: dep.ID, PrerequisiteID: pre.ID},
			Existing: true,
		}, nil
	}
	if path := g.Path(pre.ID, dep.ID); path != nil {
		return nil, &CycleError{DependentID: dep.ID, PrerequisiteID: pre.ID, Path: path}
	}

	edge := &types.InstanceEdge{
		InstanceID:     inst.ID,
		DependentID:    dep.ID,
		PrerequisiteID: pre.ID,
		CreatedBy:      tc.UserID,
	}
	if err := tx.CreateEdges(ctx, []*types.InstanceEdge{edge}); err != nil {
		return nil, err
	}
	if err := tx.BumpGraphVersion(ctx, inst.ID, inst.GraphVersion); err != nil {
		return nil, err
	}
	inst.GraphVersion++

	res := &EdgeResult{Edge: edge}
	if dep.Status != types.StatusDone && pre.Status != types.StatusDone && dep.Status != types.StatusLocked {
		if err := tx.UpdateNodeStatus(ctx, dep.ID, types.StatusLocked); err != nil {
			return nil, err
		}
		dep.Status = types.StatusLocked
		res.Locked = true
	}

	s.audit.Record(ctx, tx, tc, inst.ID, types.AuditEdgeAdded, map[string]any{
		"dependent_id":    dep.ID,
		"prerequisite_id": pre.ID,
		"locked":          res.Locked,
	})
	return res, nil
}
