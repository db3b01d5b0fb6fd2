package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/workgraph/internal/types"
)

// insertEdges bulk-inserts instance edges.
func insertEdges(ctx context.Context, q querier, edges []*types.InstanceEdge) error {
	now := time.Now().UTC()
	const cols = 5
	for start := 0; start < len(edges); start += chunkSize {
		end := min(start+chunkSize, len(edges))
		batch := edges[start:end]

		rows := make([]string, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for i, e := range batch {
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			rows[i] = "(" + placeholders(cols) + ")"
			args = append(args, e.InstanceID, e.DependentID, e.PrerequisiteID, e.CreatedBy, formatTime(e.CreatedAt))
		}
		query := `INSERT INTO instance_edges (instance_id, dependent_id, prerequisite_id, created_by, created_at)
			VALUES ` + strings.Join(rows, ", ")
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert edges: %w", err)
		}
	}
	return nil
}

// getEdges returns every prerequisite edge of an instance.
func getEdges(ctx context.Context, q querier, instanceID string) ([]*types.InstanceEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT instance_id, dependent_id, prerequisite_id, created_by, created_at
		FROM instance_edges WHERE instance_id = ?
		ORDER BY dependent_id, prerequisite_id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.InstanceEdge
	for rows.Next() {
		var e types.InstanceEdge
		var createdAt string
		if err := rows.Scan(&e.InstanceID, &e.DependentID, &e.PrerequisiteID, &e.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// getPrerequisiteStates returns every prerequisite edge of the given
// dependents together with the prerequisite's current status.
func getPrerequisiteStates(ctx context.Context, q querier, dependentIDs []string) ([]*types.PrerequisiteState, error) {
	var out []*types.PrerequisiteState
	for _, batch := range chunks(dependentIDs) {
		rows, err := q.QueryContext(ctx, `
			SELECT e.dependent_id, e.prerequisite_id, n.status
			FROM instance_edges e
			JOIN instance_nodes n ON n.id = e.prerequisite_id
			WHERE e.dependent_id IN (`+placeholders(len(batch))+`)
			ORDER BY e.dependent_id, e.prerequisite_id`, stringArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("get prerequisite states: %w", err)
		}
		for rows.Next() {
			var p types.PrerequisiteState
			if err := rows.Scan(&p.DependentID, &p.PrerequisiteID, &p.PrerequisiteStatus); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, &p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
