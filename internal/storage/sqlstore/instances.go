package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/workgraph/internal/idgen"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// instanceColumns is the column list matching the scanInstance order.
const instanceColumns = `id, tenant_id, template_id, title, metadata, created_by, status,
    graph_version, created_at, updated_at`

func scanInstance(s interface{ Scan(dest ...any) error }, extra ...any) (*types.Instance, error) {
	var inst types.Instance
	var templateID, metadata sql.NullString
	var createdAt, updatedAt string
	dest := []any{
		&inst.ID, &inst.TenantID, &templateID, &inst.Title, &metadata, &inst.CreatedBy, &inst.Status,
		&inst.GraphVersion, &createdAt, &updatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	inst.TemplateID = stringPtr(templateID)
	if metadata.Valid && metadata.String != "" {
		inst.Metadata = []byte(metadata.String)
	}
	inst.CreatedAt = parseTime(createdAt)
	inst.UpdatedAt = parseTime(updatedAt)
	return &inst, nil
}

func insertInstance(ctx context.Context, q querier, inst *types.Instance) error {
	if err := types.ValidateTitle(inst.Title); err != nil {
		return err
	}
	if inst.ID == "" {
		inst.ID = idgen.New(idgen.PrefixInstance, inst.TenantID, inst.Title)
	}
	if inst.Status == "" {
		inst.Status = types.InstanceActive
	}
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = inst.CreatedAt

	var metadata sql.NullString
	if len(inst.Metadata) > 0 {
		metadata = sql.NullString{String: string(inst.Metadata), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.TenantID, nullString(inst.TemplateID), inst.Title, metadata, inst.CreatedBy,
		string(inst.Status), inst.GraphVersion, formatTime(inst.CreatedAt), formatTime(inst.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func getInstance(ctx context.Context, q querier, id string) (*types.Instance, error) {
	inst, err := scanInstance(q.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instance %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", id, err)
	}
	return inst, nil
}

func updateInstanceStatus(ctx context.Context, q querier, id string, status types.InstanceStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid instance status: %s", status)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE instances SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	return requireAffected(res, "instance", id)
}

// bumpGraphVersion advances the instance's graph version only if it still
// equals expected. A concurrent edge insertion that committed first makes the
// WHERE clause miss and surfaces as storage.ErrGraphConflict.
func bumpGraphVersion(ctx context.Context, q querier, id string, expected int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE instances SET graph_version = graph_version + 1, updated_at = ? WHERE id = ? AND graph_version = ?`,
		formatTime(time.Now()), id, expected)
	if err != nil {
		return fmt.Errorf("bump graph version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("instance %s at version %d: %w", id, expected, storage.ErrGraphConflict)
	}
	return nil
}

// deleteInstance removes an instance with its edges and nodes. Audit rows are kept.
func deleteInstance(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM instance_edges WHERE instance_id = ?`, id); err != nil {
		return fmt.Errorf("delete instance edges: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM instance_nodes WHERE instance_id = ?`, id); err != nil {
		return fmt.Errorf("delete instance nodes: %w", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return requireAffected(res, "instance", id)
}

// listInstances returns one page of instance summaries for a tenant, newest first.
func listInstances(ctx context.Context, q querier, filter types.InstanceFilter) (*types.InstancePage, error) {
	where := `WHERE i.tenant_id = ?`
	args := []any{filter.TenantID}
	if filter.Status != nil {
		where += ` AND i.status = ?`
		args = append(args, string(*filter.Status))
	}

	page := &types.InstancePage{}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM instances i `+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := max(filter.Offset, 0)

	cols := qualify("i", instanceColumns)
	rows, err := q.QueryContext(ctx, `
		SELECT `+cols+`,
			COUNT(n.id),
			COALESCE(SUM(CASE WHEN n.status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN n.status = 'locked' THEN 1 ELSE 0 END), 0)
		FROM instances i
		LEFT JOIN instance_nodes n ON n.instance_id = i.id
		`+where+`
		GROUP BY `+cols+`
		ORDER BY i.created_at DESC, i.id
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sum types.InstanceSummary
		inst, err := scanInstance(rows, &sum.NodeCount, &sum.DoneCount, &sum.LockedCount)
		if err != nil {
			return nil, err
		}
		sum.Instance = *inst
		page.Items = append(page.Items, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if next := offset + len(page.Items); len(page.Items) > 0 && next < page.Total {
		page.NextOffset = next
	}
	return page, nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, id string) (*types.Instance, error) {
	return getInstance(ctx, s.db, id)
}

// GetInstanceGraph retrieves an instance with its nodes and edges from one snapshot.
func (s *Store) GetInstanceGraph(ctx context.Context, id string) (*types.InstanceGraph, error) {
	graph := &types.InstanceGraph{}
	err := s.readOnly(ctx, func(q querier) error {
		var err error
		if graph.Instance, err = getInstance(ctx, q, id); err != nil {
			return err
		}
		if graph.Nodes, err = getNodes(ctx, q, id); err != nil {
			return err
		}
		graph.Edges, err = getEdges(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// ListInstances returns one page of a tenant's instance summaries.
func (s *Store) ListInstances(ctx context.Context, filter types.InstanceFilter) (*types.InstancePage, error) {
	if filter.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	var page *types.InstancePage
	err := s.readOnly(ctx, func(q querier) error {
		var err error
		page, err = listInstances(ctx, q, filter)
		return err
	})
	return page, err
}
