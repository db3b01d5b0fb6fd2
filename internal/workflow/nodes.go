package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/cascade"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// NewNode describes an ad-hoc node added to a live instance.
type NewNode struct {
	InstanceID  string
	Title       string
	Description string
	Kind        types.NodeKind // Defaults to task
	Assignee    string
	ParentID    *string
	// BlockingOf names an existing node that must wait for the new one.
	BlockingOf string
}

// AddNode creates an OPEN ad-hoc node. It requires an elevated role. When
// BlockingOf is set the new node becomes a prerequisite of that node in the
// same transaction.
func (s *Service) AddNode(ctx context.Context, tc types.TenantContext, req NewNode) (node *types.InstanceNode, err error) {
	ctx, end := s.span(ctx, "AddNode", attribute.String("wg.instance.id", req.InstanceID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if err := types.ValidateTitle(req.Title); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if req.Kind == "" {
		req.Kind = types.KindTask
	}
	if !req.Kind.IsValid() {
		return nil, invalidArg("unknown node kind %q", req.Kind)
	}

	err = s.mutate(ctx, func(tx storage.Transaction) error {
		inst, err := loadInstance(ctx, tx, tc, req.InstanceID)
		if err != nil {
			return err
		}
		if !access.CanAddNode(tc, inst) {
			return fmt.Errorf("adding nodes to %s requires an elevated role: %w", inst.ID, ErrForbidden)
		}

		existing, err := tx.GetNodes(ctx, inst.ID)
		if err != nil {
			return err
		}
		order := 0
		for _, n := range existing {
			order = max(order, n.Order+1)
		}
		if req.ParentID != nil {
			parent, err := tx.GetNode(ctx, *req.ParentID)
			if err != nil {
				return err
			}
			if parent.InstanceID != inst.ID {
				return fmt.Errorf("%w: parent %s belongs to instance %s", ErrTenantMismatch, parent.ID, parent.InstanceID)
			}
		}

		node = &types.InstanceNode{
			InstanceID:  inst.ID,
			Title:       req.Title,
			Description: req.Description,
			Kind:        req.Kind,
			Status:      types.StatusOpen,
			Assignee:    req.Assignee,
			ParentID:    req.ParentID,
			Order:       order,
		}
		if err := tx.CreateNodes(ctx, []*types.InstanceNode{node}); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, tc, inst.ID, types.AuditNodeAdded, map[string]any{
			"node_id":     node.ID,
			"title":       node.Title,
			"blocking_of": req.BlockingOf,
		})

		if req.BlockingOf != "" {
			dep, err := tx.GetNode(ctx, req.BlockingOf)
			if err != nil {
				return err
			}
			if dep.InstanceID != inst.ID {
				return fmt.Errorf("%w: node %s belongs to instance %s, not %s", ErrTenantMismatch, dep.ID, dep.InstanceID, inst.ID)
			}
			if _, err := s.addEdgeInTx(ctx, tx, tc, inst, dep, node); err != nil {
				return err
			}
		}
		return refreshInstanceStatus(ctx, tx, inst)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// StatusChange reports the outcome of UpdateNodeStatus.
type StatusChange struct {
	Node           *types.InstanceNode  `json:"node"`
	Previous       types.Status         `json:"previous"`
	Cascaded       []cascade.Change     `json:"cascaded,omitempty"`
	InstanceStatus types.InstanceStatus `json:"instance_status"`
	// Unchanged is set when the node already had the requested status.
	Unchanged bool `json:"unchanged,omitempty"`
}

// UpdateNodeStatus moves a node to OPEN, IN_PROGRESS or DONE and applies the
// one-hop cascade to its direct dependents in the same transaction:
// completing a node unlocks LOCKED dependents whose prerequisites are now all
// DONE, and any other status locks OPEN and IN_PROGRESS dependents.
//
// The caller must hold an elevated role, have created the instance, be the
// node's assignee, or the node must be unassigned.
//
// LOCKED cannot be requested (ErrInvalidStatus). A LOCKED node cannot be moved
// by any caller, elevated roles included (ErrNodeLocked): it leaves LOCKED only
// through the completion cascade once every prerequisite is DONE.
func (s *Service) UpdateNodeStatus(ctx context.Context, tc types.TenantContext, nodeID string, status types.Status) (res *StatusChange, err error) {
	ctx, end := s.span(ctx, "UpdateNodeStatus",
		attribute.String("wg.node.id", nodeID),
		attribute.String("wg.status", string(status)))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !status.IsUserSettable() {
		return nil, fmt.Errorf("%w: %s is derived from prerequisites and cannot be set directly", ErrInvalidStatus, status)
	}

	err = s.mutate(ctx, func(tx storage.Transaction) error {
		node, inst, err := loadNode(ctx, tx, tc, nodeID)
		if err != nil {
			return err
		}
		if !access.CanMutateNode(tc, inst, node) {
			return fmt.Errorf("node %s: %w", node.ID, ErrForbidden)
		}
		res = &StatusChange{Node: node, Previous: node.Status, InstanceStatus: inst.Status}
		if node.Status == status {
			res.Unchanged = true
			return nil
		}
		if node.Status == types.StatusLocked {
			return fmt.Errorf("%w: %s", ErrNodeLocked, node.ID)
		}

		if err := tx.UpdateNodeStatus(ctx, node.ID, status); err != nil {
			return err
		}
		node.Status = status
		s.audit.Record(ctx, tx, tc, inst.ID, types.AuditStatusChanged, map[string]any{
			"node_id": node.ID,
			"from":    string(res.Previous),
			"to":      string(status),
		})

		dependents, err := tx.GetDependents(ctx, node.ID)
		if err != nil {
			return err
		}
		if status == types.StatusDone {
			prereqs, err := tx.GetPrerequisiteStates(ctx, nodeIDs(dependents))
			if err != nil {
				return err
			}
			res.Cascaded = cascade.CompletionCascades(node.ID, dependents, prereqs)
		} else {
			res.Cascaded = cascade.ReversionCascades(node.ID, dependents)
		}
		if err := s.applyCascade(ctx, tx, tc, inst, node, res.Cascaded); err != nil {
			return err
		}

		if err := refreshInstanceStatus(ctx, tx, inst); err != nil {
			return err
		}
		res.InstanceStatus = inst.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) applyCascade(ctx context.Context, tx storage.Transaction, tc types.TenantContext, inst *types.Instance, trigger *types.InstanceNode, changes []cascade.Change) error {
	if len(changes) == 0 {
		return nil
	}
	byStatus := make(map[types.Status][]string)
	for _, c := range changes {
		byStatus[c.NewStatus] = append(byStatus[c.NewStatus], c.ID)
	}
	for _, status := range []types.Status{types.StatusOpen, types.StatusLocked} {
		ids := byStatus[status]
		if len(ids) == 0 {
			continue
		}
		if err := tx.SetNodeStatuses(ctx, ids, status); err != nil {
			return err
		}
		s.cascades.Add(ctx, int64(len(ids)), metric.WithAttributes(attribute.String("status", string(status))))
	}

	s.log.Debug("applied cascade",
		"instance", inst.ID,
		"trigger", trigger.ID,
		"status", string(trigger.Status),
		"changed", len(changes))
	s.audit.Record(ctx, tx, tc, inst.ID, types.AuditCascade, map[string]any{
		"trigger_id": trigger.ID,
		"trigger":    string(trigger.Status),
		"changes":    changes,
	})
	return nil
}

func nodeIDs(nodes []*types.InstanceNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// UpdateNodeDetails changes a node's title and/or description. Authorization
// matches UpdateNodeStatus; no cascade runs.
func (s *Service) UpdateNodeDetails(ctx context.Context, tc types.TenantContext, nodeID string, update types.NodeDetailsUpdate) (node *types.InstanceNode, err error) {
	ctx, end := s.span(ctx, "UpdateNodeDetails", attribute.String("wg.node.id", nodeID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, invalidArg("nothing to update")
	}
	if update.Title != nil {
		if err := types.ValidateTitle(*update.Title); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}

	err = s.mutate(ctx, func(tx storage.Transaction) error {
		n, inst, err := loadNode(ctx, tx, tc, nodeID)
		if err != nil {
			return err
		}
		if !access.CanMutateNode(tc, inst, n) {
			return fmt.Errorf("node %s: %w", n.ID, ErrForbidden)
		}
		if err := tx.UpdateNodeDetails(ctx, n.ID, update); err != nil {
			return err
		}
		details := map[string]any{"node_id": n.ID}
		if update.Title != nil {
			details["title"] = *update.Title
		}
		if update.Description != nil {
			details["description_changed"] = true
		}
		s.audit.Record(ctx, tx, tc, inst.ID, types.AuditDetailsChanged, details)

		node, err = tx.GetNode(ctx, n.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}
