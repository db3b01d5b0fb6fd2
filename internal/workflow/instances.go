package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/clone"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// Instantiate clones a template of the caller's tenant into a new instance
// owned by the caller. Any tenant member may instantiate.
func (s *Service) Instantiate(ctx context.Context, tc types.TenantContext, req clone.Request) (res *clone.Result, err error) {
	ctx, end := s.span(ctx, "Instantiate", attribute.String("wg.template.id", req.TemplateID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if req.TemplateID == "" {
		return nil, invalidArg("template id is required")
	}
	if err := types.ValidateTitle(req.Title); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return s.cloner.Instantiate(ctx, tc, req)
}

// GetInstanceGraph returns an instance with its nodes (in sibling order) and edges.
func (s *Service) GetInstanceGraph(ctx context.Context, tc types.TenantContext, instanceID string) (g *types.InstanceGraph, err error) {
	ctx, end := s.span(ctx, "GetInstanceGraph", attribute.String("wg.instance.id", instanceID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	g, err = s.store.GetInstanceGraph(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !access.SameTenant(tc, g.Instance.TenantID) {
		return nil, fmt.Errorf("instance %s: %w", instanceID, ErrNotFound)
	}
	return g, nil
}

// ListInstances returns one page of the caller's tenant's instance summaries.
// filter.TenantID is always replaced by the caller's tenant.
func (s *Service) ListInstances(ctx context.Context, tc types.TenantContext, filter types.InstanceFilter) (page *types.InstancePage, err error) {
	ctx, end := s.span(ctx, "ListInstances")
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, invalidArg("unknown instance status %q", *filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, invalidArg("limit and offset must not be negative")
	}
	filter.TenantID = tc.TenantID
	return s.store.ListInstances(ctx, filter)
}

// History returns the audit trail of an instance, oldest first.
func (s *Service) History(ctx context.Context, tc types.TenantContext, instanceID string, limit int) (entries []*types.AuditEntry, err error) {
	ctx, end := s.span(ctx, "History", attribute.String("wg.instance.id", instanceID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !access.SameTenant(tc, inst.TenantID) {
		return nil, fmt.Errorf("instance %s: %w", instanceID, ErrNotFound)
	}
	return s.store.GetAuditEntries(ctx, instanceID, limit)
}

// DeleteInstance removes an instance with all of its nodes and edges. It is
// allowed for elevated roles and the instance creator. The audit trail is kept.
func (s *Service) DeleteInstance(ctx context.Context, tc types.TenantContext, instanceID string) (err error) {
	ctx, end := s.span(ctx, "DeleteInstance", attribute.String("wg.instance.id", instanceID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return err
	}
	return s.mutate(ctx, func(tx storage.Transaction) error {
		inst, err := loadInstance(ctx, tx, tc, instanceID)
		if err != nil {
			return err
		}
		if !access.CanDeleteInstance(tc, inst) {
			return fmt.Errorf("instance %s: %w", inst.ID, ErrForbidden)
		}
		if err := tx.DeleteInstance(ctx, inst.ID); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, tc, inst.ID, types.AuditInstanceDeleted, map[string]any{
			"title": inst.Title,
		})
		return nil
	})
}
