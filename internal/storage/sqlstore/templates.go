package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/workgraph/internal/idgen"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// CreateTemplateGraph persists a template with its nodes and edges in one
// transaction. Node ids supplied by the caller are local keys: every node gets
// a freshly generated id and edges and parents are rewritten to match.
func (s *Store) CreateTemplateGraph(ctx context.Context, graph *types.TemplateGraph) error {
	if graph == nil || graph.Template == nil {
		return fmt.Errorf("template is required")
	}
	tpl := graph.Template
	if tpl.TenantID == "" {
		return fmt.Errorf("template tenant id is required")
	}
	if err := types.ValidateTitle(tpl.Name); err != nil {
		return fmt.Errorf("template name: %w", err)
	}
	if tpl.ID == "" {
		tpl.ID = idgen.New(idgen.PrefixTemplate, tpl.TenantID, tpl.Name)
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}

	keys := make(map[string]string, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if err := types.ValidateTitle(n.Title); err != nil {
			return fmt.Errorf("template node: %w", err)
		}
		if n.Kind == "" {
			n.Kind = types.KindTask
		}
		if !n.Kind.IsValid() {
			return fmt.Errorf("template node %q: invalid kind %s", n.Title, n.Kind)
		}
		id := idgen.New(idgen.PrefixTemplateNode, tpl.ID, n.Title)
		if n.ID != "" {
			if _, dup := keys[n.ID]; dup {
				return fmt.Errorf("duplicate template node key %q", n.ID)
			}
			keys[n.ID] = id
		}
		n.ID = id
		n.TemplateID = tpl.ID
	}
	for _, n := range graph.Nodes {
		if n.ParentID == nil {
			continue
		}
		parent, ok := keys[*n.ParentID]
		if !ok {
			return fmt.Errorf("template node %q: parent %s is not part of the template", n.Title, *n.ParentID)
		}
		n.ParentID = &parent
	}
	for _, e := range graph.Edges {
		dep, okDep := keys[e.DependentID]
		pre, okPre := keys[e.PrerequisiteID]
		if !okDep || !okPre {
			return fmt.Errorf("template edge %s -> %s references an unknown node", e.DependentID, e.PrerequisiteID)
		}
		if dep == pre {
			return fmt.Errorf("template edge on %s is a self-dependency", e.DependentID)
		}
		e.TemplateID, e.DependentID, e.PrerequisiteID = tpl.ID, dep, pre
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO templates (id, tenant_id, name, description, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			tpl.ID, tpl.TenantID, tpl.Name, tpl.Description, tpl.CreatedBy, formatTime(tpl.CreatedAt)); err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		if err := insertTemplateNodes(ctx, tx, graph.Nodes); err != nil {
			return err
		}
		return insertTemplateEdges(ctx, tx, graph.Edges)
	})
}

func insertTemplateNodes(ctx context.Context, q querier, nodes []*types.TemplateNode) error {
	const cols = 8
	for start := 0; start < len(nodes); start += chunkSize {
		end := min(start+chunkSize, len(nodes))
		batch := nodes[start:end]

		rows := make([]string, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for i, n := range batch {
			rows[i] = "(" + placeholders(cols) + ")"
			args = append(args, n.ID, n.TemplateID, n.Title, n.Description, string(n.Kind), n.Order,
				nullString(n.ParentID), n.DefaultAssignee)
		}
		query := `INSERT INTO template_nodes
			(id, template_id, title, description, kind, sort_order, parent_id, default_assignee)
			VALUES ` + strings.Join(rows, ", ")
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert template nodes: %w", err)
		}
	}
	return nil
}

func insertTemplateEdges(ctx context.Context, q querier, edges []*types.TemplateEdge) error {
	const cols = 3
	for start := 0; start < len(edges); start += chunkSize {
		end := min(start+chunkSize, len(edges))
		batch := edges[start:end]

		rows := make([]string, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for i, e := range batch {
			rows[i] = "(" + placeholders(cols) + ")"
			args = append(args, e.TemplateID, e.DependentID, e.PrerequisiteID)
		}
		query := `INSERT INTO template_edges (template_id, dependent_id, prerequisite_id) VALUES ` + strings.Join(rows, ", ")
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert template edges: %w", err)
		}
	}
	return nil
}

const templateColumns = `id, tenant_id, name, description, created_by, created_at`

func scanTemplate(s interface{ Scan(dest ...any) error }) (*types.Template, error) {
	var t types.Template
	var createdAt string
	if err := s.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func getTemplate(ctx context.Context, q querier, id string) (*types.Template, error) {
	t, err := scanTemplate(q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

func getTemplateNodes(ctx context.Context, q querier, templateID string) ([]*types.TemplateNode, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, template_id, title, description, kind, sort_order, parent_id, default_assignee
		FROM template_nodes WHERE template_id = ?
		ORDER BY sort_order, id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*types.TemplateNode
	for rows.Next() {
		var n types.TemplateNode
		var parentID sql.NullString
		if err := rows.Scan(&n.ID, &n.TemplateID, &n.Title, &n.Description, &n.Kind, &n.Order,
			&parentID, &n.DefaultAssignee); err != nil {
			return nil, err
		}
		n.ParentID = stringPtr(parentID)
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

func getTemplateEdges(ctx context.Context, q querier, templateID string) ([]*types.TemplateEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT template_id, dependent_id, prerequisite_id
		FROM template_edges WHERE template_id = ?
		ORDER BY dependent_id, prerequisite_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.TemplateEdge
	for rows.Next() {
		var e types.TemplateEdge
		if err := rows.Scan(&e.TemplateID, &e.DependentID, &e.PrerequisiteID); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*types.Template, error) {
	return getTemplate(ctx, s.db, id)
}

// GetTemplateGraph retrieves a template with its nodes and edges.
func (s *Store) GetTemplateGraph(ctx context.Context, id string) (*types.TemplateGraph, error) {
	graph := &types.TemplateGraph{}
	err := s.readOnly(ctx, func(q querier) error {
		var err error
		if graph.Template, err = getTemplate(ctx, q, id); err != nil {
			return err
		}
		if graph.Nodes, err = getTemplateNodes(ctx, q, id); err != nil {
			return err
		}
		graph.Edges, err = getTemplateEdges(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// ListTemplates returns a tenant's templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context, tenantID string) ([]*types.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = ? ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*types.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
