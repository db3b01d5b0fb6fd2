// Package clone instantiates live instance graphs from stored templates.
package clone

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/audit"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// DefaultTimeout bounds a whole clone transaction. Templates can have
// hundreds of nodes, so it is well above the per-operation budget.
const DefaultTimeout = 2 * time.Minute

// Request describes one instantiation.
type Request struct {
	TemplateID string
	Title      string
	Metadata   json.RawMessage   // Optional, stored verbatim
	Vars       map[string]string // {{name}} substitutions for node titles and descriptions
}

// Result reports what a clone created.
type Result struct {
	Instance  *types.Instance       `json:"instance"`
	Nodes     []*types.InstanceNode `json:"nodes"`
	Edges     []*types.InstanceEdge `json:"edges"`
	IDMapping map[string]string     `json:"id_mapping"` // template node id -> instance node id
}

// Cloner copies template graphs into new instances.
type Cloner struct {
	store   storage.Storage
	audit   *audit.Recorder
	log     *slog.Logger
	timeout time.Duration
}

// New returns a Cloner. A zero timeout selects DefaultTimeout.
func New(store storage.Storage, rec *audit.Recorder, log *slog.Logger, timeout time.Duration) *Cloner {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = audit.NewRecorder(nil, log)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cloner{store: store, audit: rec, log: log, timeout: timeout}
}

// Instantiate clones the template named by req into a new instance owned by
// the caller. Everything happens in one transaction: on any failure, including
// the timeout, no part of the instance is left behind.
//
// The template must exist (storage.ErrNotFound) and belong to the caller's
// tenant (access.ErrForbidden).
func (c *Cloner) Instantiate(ctx context.Context, tc types.TenantContext, req Request) (*Result, error) {
	if err := types.ValidateTitle(req.Title); err != nil {
		return nil, err
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return nil, fmt.Errorf("metadata is not valid JSON")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var res *Result
	err := c.audit.Run(ctx, c.store, func(tx storage.Transaction) error {
		var err error
		res, err = c.cloneInTx(ctx, tx, tc, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("instantiated template",
		"template", req.TemplateID,
		"instance", res.Instance.ID,
		"nodes", len(res.Nodes),
		"edges", len(res.Edges))
	return res, nil
}

func (c *Cloner) cloneInTx(ctx context.Context, tx storage.Transaction, tc types.TenantContext, req Request) (*Result, error) {
	// Load the full template graph
	tpl, err := tx.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !access.CanInstantiate(tc, tpl) {
		return nil, fmt.Errorf("template %s belongs to another tenant: %w", tpl.ID, access.ErrForbidden)
	}
	tplNodes, err := tx.GetTemplateNodes(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}
	tplEdges, err := tx.GetTemplateEdges(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}

	// Instance shell
	templateID := tpl.ID
	inst := &types.Instance{
		TenantID:   tc.TenantID,
		TemplateID: &templateID,
		Title:      req.Title,
		Metadata:   req.Metadata,
		CreatedBy:  tc.UserID,
		Status:     types.InstanceActive,
	}
	if err := tx.CreateInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	// One node per template node, all LOCKED until prerequisites are known
	nodes := make([]*types.InstanceNode, len(tplNodes))
	for i, tn := range tplNodes {
		sourceID := tn.ID
		nodes[i] = &types.InstanceNode{
			InstanceID:     inst.ID,
			TemplateNodeID: &sourceID,
			Title:          SubstituteVariables(tn.Title, req.Vars),
			Description:    SubstituteVariables(tn.Description, req.Vars),
			Kind:           tn.Kind,
			Status:         types.StatusLocked,
			Assignee:       tn.DefaultAssignee,
			Order:          tn.Order,
		}
	}
	if err := tx.CreateNodes(ctx, nodes); err != nil {
		return nil, fmt.Errorf("create nodes: %w", err)
	}

	idMapping := make(map[string]string, len(nodes))
	for i, tn := range tplNodes {
		idMapping[tn.ID] = nodes[i].ID
	}

	// Edges, skipping any whose endpoints did not map
	edges := make([]*types.InstanceEdge, 0, len(tplEdges))
	hasPrereq := make(map[string]bool, len(tplEdges))
	for _, te := range tplEdges {
		dep, ok1 := idMapping[te.DependentID]
		pre, ok2 := idMapping[te.PrerequisiteID]
		if !ok1 || !ok2 {
			c.log.Warn("skipping template edge with unmapped endpoint",
				"template", tpl.ID, "dependent", te.DependentID, "prerequisite", te.PrerequisiteID)
			continue
		}
		edges = append(edges, &types.InstanceEdge{
			InstanceID:     inst.ID,
			DependentID:    dep,
			PrerequisiteID: pre,
			CreatedBy:      tc.UserID,
		})
		hasPrereq[dep] = true
	}
	if len(edges) > 0 {
		if err := tx.CreateEdges(ctx, edges); err != nil {
			return nil, fmt.Errorf("create edges: %w", err)
		}
	}

	// Re-point parents at the new ids
	parents := make(map[string]string)
	for i, tn := range tplNodes {
		if tn.ParentID == nil {
			continue
		}
		if p, ok := idMapping[*tn.ParentID]; ok {
			parents[nodes[i].ID] = p
			parent := p
			nodes[i].ParentID = &parent
		}
	}
	if len(parents) > 0 {
		if err := tx.SetNodeParents(ctx, parents); err != nil {
			return nil, fmt.Errorf("set parents: %w", err)
		}
	}

	// Nodes without prerequisites start OPEN
	var open []string
	for _, n := range nodes {
		if !hasPrereq[n.ID] {
			open = append(open, n.ID)
			n.Status = types.StatusOpen
		}
	}
	if len(open) > 0 {
		if err := tx.SetNodeStatuses(ctx, open, types.StatusOpen); err != nil {
			return nil, fmt.Errorf("open unblocked nodes: %w", err)
		}
	}

	c.audit.Record(ctx, tx, tc, inst.ID, types.AuditInstanceCreated, map[string]any{
		"template_id": tpl.ID,
		"template":    tpl.Name,
		"nodes":       len(nodes),
		"edges":       len(edges),
	})

	return &Result{Instance: inst, Nodes: nodes, Edges: edges, IDMapping: idMapping}, nil
}
