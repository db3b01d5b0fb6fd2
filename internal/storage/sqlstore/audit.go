package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/steveyegge/workgraph/internal/types"
)

func appendAudit(ctx context.Context, q querier, entry *types.AuditEntry) error {
	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (instance_id, tenant_id, actor, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.InstanceID, entry.TenantID, entry.Actor, string(entry.Action), details, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// GetAuditEntries returns the audit trail of an instance, oldest first.
// A non-positive limit returns every entry.
func (s *Store) GetAuditEntries(ctx context.Context, instanceID string, limit int) ([]*types.AuditEntry, error) {
	query := `SELECT id, instance_id, tenant_id, actor, action, details, created_at
		FROM audit_log WHERE instance_id = ? ORDER BY id`
	args := []any{instanceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get audit entries: %w", err)
	}
	defer rows.Close()

	var out []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.TenantID, &e.Actor, &e.Action, &details, &createdAt); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %d: %w", e.ID, err)
			}
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
