package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/workgraph/internal/idgen"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// nodeColumns is the column list matching the scanNode order.
const nodeColumns = `id, instance_id, template_node_id, title, description, kind, status,
    assignee, parent_id, sort_order, created_at, updated_at`

// qualify prefixes every column of a column list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanNode(s interface{ Scan(dest ...any) error }) (*types.InstanceNode, error) {
	var n types.InstanceNode
	var templateNodeID, parentID sql.NullString
	var createdAt, updatedAt string
	if err := s.Scan(
		&n.ID, &n.InstanceID, &templateNodeID, &n.Title, &n.Description, &n.Kind, &n.Status,
		&n.Assignee, &parentID, &n.Order, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	n.TemplateNodeID = stringPtr(templateNodeID)
	n.ParentID = stringPtr(parentID)
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*types.InstanceNode, error) {
	defer rows.Close()
	var nodes []*types.InstanceNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// insertNodes bulk-inserts nodes, assigning ids and timestamps in place.
func insertNodes(ctx context.Context, q querier, nodes []*types.InstanceNode) error {
	now := time.Now().UTC()
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("node %q: %w", n.Title, err)
		}
		if n.ID == "" {
			n.ID = idgen.New(idgen.PrefixNode, n.InstanceID, n.Title)
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		n.UpdatedAt = n.CreatedAt
	}

	const cols = 12
	for start := 0; start < len(nodes); start += chunkSize {
		end := min(start+chunkSize, len(nodes))
		batch := nodes[start:end]

		rows := make([]string, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for i, n := range batch {
			rows[i] = "(" + placeholders(cols) + ")"
			args = append(args,
				n.ID, n.InstanceID, nullString(n.TemplateNodeID), n.Title, n.Description, string(n.Kind), string(n.Status),
				n.Assignee, nullString(n.ParentID), n.Order, formatTime(n.CreatedAt), formatTime(n.UpdatedAt),
			)
		}
		query := `INSERT INTO instance_nodes (` + nodeColumns + `) VALUES ` + strings.Join(rows, ", ")
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert nodes: %w", err)
		}
	}
	return nil
}

func getNode(ctx context.Context, q querier, id string) (*types.InstanceNode, error) {
	n, err := scanNode(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM instance_nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

func getNodes(ctx context.Context, q querier, instanceID string) ([]*types.InstanceNode, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM instance_nodes WHERE instance_id = ? ORDER BY sort_order, id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get nodes: %w", err)
	}
	return scanNodes(rows)
}

// getDependents returns the direct dependents of nodeID.
func getDependents(ctx context.Context, q querier, nodeID string) ([]*types.InstanceNode, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+qualify("n", nodeColumns)+`
		FROM instance_nodes n
		JOIN instance_edges e ON e.dependent_id = n.id
		WHERE e.prerequisite_id = ?
		ORDER BY n.sort_order, n.id`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("get dependents of %s: %w", nodeID, err)
	}
	return scanNodes(rows)
}

func updateNodeStatus(ctx context.Context, q querier, id string, status types.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE instance_nodes SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update node status: %w", err)
	}
	return requireAffected(res, "node", id)
}

// setNodeStatuses bulk-updates the status of ids.
func setNodeStatuses(ctx context.Context, q querier, ids []string, status types.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	now := formatTime(time.Now())
	for _, batch := range chunks(ids) {
		args := append([]any{string(status), now}, stringArgs(batch)...)
		if _, err := q.ExecContext(ctx,
			`UPDATE instance_nodes SET status = ?, updated_at = ? WHERE id IN (`+placeholders(len(batch))+`)`,
			args...); err != nil {
			return fmt.Errorf("set node statuses: %w", err)
		}
	}
	return nil
}

// setNodeParents bulk-updates parent references with one CASE statement per chunk.
func setNodeParents(ctx context.Context, q querier, parents map[string]string) error {
	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, batch := range chunks(ids) {
		var sb strings.Builder
		args := make([]any, 0, len(batch)*3)
		sb.WriteString(`UPDATE instance_nodes SET parent_id = CASE id`)
		for _, id := range batch {
			sb.WriteString(` WHEN ? THEN ?`)
			args = append(args, id, parents[id])
		}
		sb.WriteString(` END WHERE id IN (` + placeholders(len(batch)) + `)`)
		args = append(args, stringArgs(batch)...)
		if _, err := q.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("set node parents: %w", err)
		}
	}
	return nil
}

func updateNodeDetails(ctx context.Context, q querier, id string, update types.NodeDetailsUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	var sets []string
	var args []any
	if update.Title != nil {
		if err := types.ValidateTitle(*update.Title); err != nil {
			return err
		}
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	res, err := q.ExecContext(ctx, `UPDATE instance_nodes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update node details: %w", err)
	}
	return requireAffected(res, "node", id)
}

// requireAffected maps a zero-row update to storage.ErrNotFound.
func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, storage.ErrNotFound)
	}
	return nil
}
