package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/graph"
	"github.com/steveyegge/workgraph/internal/types"
)

// ImportTemplate stores a template graph for the caller's tenant. Node ids in
// g are local keys referenced by edges and parents; stored nodes get new ids.
// Requires an elevated role. Cyclic definitions are refused with a CycleError.
func (s *Service) ImportTemplate(ctx context.Context, tc types.TenantContext, g *types.TemplateGraph) (tpl *types.Template, err error) {
	ctx, end := s.span(ctx, "ImportTemplate")
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	if g == nil || g.Template == nil {
		return nil, invalidArg("template is required")
	}
	if !access.IsElevated(tc.Role) {
		return nil, fmt.Errorf("importing templates requires an elevated role: %w", ErrForbidden)
	}
	if err := validateTemplate(g); err != nil {
		return nil, err
	}
	if cycle := graph.Build(g.Edges).FindCycle(); cycle != nil {
		n := len(cycle)
		return nil, &CycleError{DependentID: cycle[n-2], PrerequisiteID: cycle[n-1], Path: cycle[:n-1]}
	}

	g.Template.ID = ""
	g.Template.TenantID = tc.TenantID
	g.Template.CreatedBy = tc.UserID
	if err := s.store.CreateTemplateGraph(ctx, g); err != nil {
		return nil, err
	}
	s.log.Info("imported template",
		"template", g.Template.ID,
		"name", g.Template.Name,
		"nodes", len(g.Nodes),
		"edges", len(g.Edges))
	return g.Template, nil
}

// ListTemplates returns the templates of the caller's tenant.
func (s *Service) ListTemplates(ctx context.Context, tc types.TenantContext) (list []*types.Template, err error) {
	ctx, end := s.span(ctx, "ListTemplates")
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	return s.store.ListTemplates(ctx, tc.TenantID)
}

// GetTemplateGraph returns a template of the caller's tenant with its nodes and edges.
func (s *Service) GetTemplateGraph(ctx context.Context, tc types.TenantContext, templateID string) (g *types.TemplateGraph, err error) {
	ctx, end := s.span(ctx, "GetTemplateGraph", attribute.String("wg.template.id", templateID))
	defer func() { err = end(err) }()

	if err := checkCaller(tc); err != nil {
		return nil, err
	}
	g, err = s.store.GetTemplateGraph(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !access.CanInstantiate(tc, g.Template) {
		return nil, fmt.Errorf("template %s belongs to another tenant: %w", templateID, ErrForbidden)
	}
	return g, nil
}

// validateTemplate checks titles and kinds, that every edge and parent
// references a node key of the same definition, and that no edge is listed twice.
func validateTemplate(g *types.TemplateGraph) error {
	if err := types.ValidateTitle(g.Template.Name); err != nil {
		return fmt.Errorf("%w: template name: %w", ErrInvalidArgument, err)
	}
	if len(g.Nodes) == 0 {
		return invalidArg("template %q has no nodes", g.Template.Name)
	}
	keys := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return invalidArg("template node %q has no key", n.Title)
		}
		if keys[n.ID] {
			return invalidArg("duplicate template node key %q", n.ID)
		}
		keys[n.ID] = true
		if err := types.ValidateTitle(n.Title); err != nil {
			return fmt.Errorf("%w: node %s: %w", ErrInvalidArgument, n.ID, err)
		}
		if n.Kind != "" && !n.Kind.IsValid() {
			return invalidArg("node %s: unknown kind %q", n.ID, n.Kind)
		}
	}
	for _, n := range g.Nodes {
		if n.ParentID != nil && !keys[*n.ParentID] {
			return invalidArg("node %s: unknown parent %q", n.ID, *n.ParentID)
		}
	}
	type edgeKey struct{ dep, pre string }
	seen := make(map[edgeKey]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.DependentID == e.PrerequisiteID {
			return fmt.Errorf("%w: %s", ErrSelfDependency, e.DependentID)
		}
		if !keys[e.DependentID] || !keys[e.PrerequisiteID] {
			return invalidArg("edge %s -> %s references an unknown node", e.DependentID, e.PrerequisiteID)
		}
		k := edgeKey{e.DependentID, e.PrerequisiteID}
		if seen[k] {
			return invalidArg("duplicate edge %s -> %s", e.DependentID, e.PrerequisiteID)
		}
		seen[k] = true
	}
	return nil
}
