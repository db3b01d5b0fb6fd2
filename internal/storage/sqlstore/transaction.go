package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// sqlTx implements storage.Transaction on a *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
}

var _ storage.Transaction = (*sqlTx)(nil)

// RunInTransaction executes fn within a database transaction.
// Busy, deadlock and storage.ErrGraphConflict failures roll back and re-run
// fn with exponential backoff; any other error rolls back and is returned as is.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx})
	})
}

// withTx runs fn in a transaction, retrying transient failures.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.runTransactionOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		s.log.Debug("retrying transaction", "attempt", attempt, "error", err)
		return err
	}, s.newTxBackoff(ctx))
	if err != nil && attempt > 1 && isRetryableError(err) {
		return fmt.Errorf("transaction failed after %d attempts: %w", attempt, err)
	}
	return err
}

// runTransactionOnce executes a single transaction attempt
func (s *Store) runTransactionOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqlTx) GetTemplate(ctx context.Context, id string) (*types.Template, error) {
	return getTemplate(ctx, t.tx, id)
}

func (t *sqlTx) GetTemplateNodes(ctx context.Context, templateID string) ([]*types.TemplateNode, error) {
	return getTemplateNodes(ctx, t.tx, templateID)
}

func (t *sqlTx) GetTemplateEdges(ctx context.Context, templateID string) ([]*types.TemplateEdge, error) {
	return getTemplateEdges(ctx, t.tx, templateID)
}

func (t *sqlTx) CreateInstance(ctx context.Context, inst *types.Instance) error {
	return insertInstance(ctx, t.tx, inst)
}

func (t *sqlTx) GetInstance(ctx context.Context, id string) (*types.Instance, error) {
	return getInstance(ctx, t.tx, id)
}

func (t *sqlTx) UpdateInstanceStatus(ctx context.Context, id string, status types.InstanceStatus) error {
	return updateInstanceStatus(ctx, t.tx, id, status)
}

func (t *sqlTx) BumpGraphVersion(ctx context.Context, id string, expected int64) error {
	return bumpGraphVersion(ctx, t.tx, id, expected)
}

func (t *sqlTx) DeleteInstance(ctx context.Context, id string) error {
	return deleteInstance(ctx, t.tx, id)
}

func (t *sqlTx) CreateNodes(ctx context.Context, nodes []*types.InstanceNode) error {
	return insertNodes(ctx, t.tx, nodes)
}

func (t *sqlTx) GetNode(ctx context.Context, id string) (*types.InstanceNode, error) {
	return getNode(ctx, t.tx, id)
}

func (t *sqlTx) GetNodes(ctx context.Context, instanceID string) ([]*types.InstanceNode, error) {
	return getNodes(ctx, t.tx, instanceID)
}

func (t *sqlTx) GetDependents(ctx context.Context, nodeID string) ([]*types.InstanceNode, error) {
	return getDependents(ctx, t.tx, nodeID)
}

func (t *sqlTx) UpdateNodeStatus(ctx context.Context, id string, status types.Status) error {
	return updateNodeStatus(ctx, t.tx, id, status)
}

func (t *sqlTx) SetNodeStatuses(ctx context.Context, ids []string, status types.Status) error {
	return setNodeStatuses(ctx, t.tx, ids, status)
}

func (t *sqlTx) SetNodeParents(ctx context.Context, parents map[string]string) error {
	return setNodeParents(ctx, t.tx, parents)
}

func (t *sqlTx) UpdateNodeDetails(ctx context.Context, id string, update types.NodeDetailsUpdate) error {
	return updateNodeDetails(ctx, t.tx, id, update)
}

func (t *sqlTx) CreateEdges(ctx context.Context, edges []*types.InstanceEdge) error {
	return insertEdges(ctx, t.tx, edges)
}

func (t *sqlTx) GetEdges(ctx context.Context, instanceID string) ([]*types.InstanceEdge, error) {
	return getEdges(ctx, t.tx, instanceID)
}

func (t *sqlTx) GetPrerequisiteStates(ctx context.Context, dependentIDs []string) ([]*types.PrerequisiteState, error) {
	return getPrerequisiteStates(ctx, t.tx, dependentIDs)
}

func (t *sqlTx) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return appendAudit(ctx, t.tx, entry)
}
