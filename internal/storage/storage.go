// Package storage provides the data-access contract of the workflow engine.
//
// The concrete implementation lives in the sqlstore sub-package. This package
// holds the interfaces and sentinel errors referenced by both the store and
// its consumers (internal/workflow, internal/clone, cmd/wg).
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/workgraph/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrGraphConflict is returned by BumpGraphVersion when another transaction
// changed the instance's edge set after it was read. Stores retry the whole
// transaction when fn returns an error matching it.
var ErrGraphConflict = errors.New("instance graph changed concurrently")

// Storage is the interface satisfied by *sqlstore.Store.
// Consumers depend on this interface rather than on the concrete type so that
// alternative implementations (instrumented wrappers, test doubles) can be substituted.
type Storage interface {
	// Templates
	CreateTemplateGraph(ctx context.Context, graph *types.TemplateGraph) error
	GetTemplate(ctx context.Context, id string) (*types.Template, error)
	GetTemplateGraph(ctx context.Context, id string) (*types.TemplateGraph, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*types.Template, error)

	// Instances
	GetInstance(ctx context.Context, id string) (*types.Instance, error)
	GetInstanceGraph(ctx context.Context, id string) (*types.InstanceGraph, error)
	ListInstances(ctx context.Context, filter types.InstanceFilter) (*types.InstancePage, error)

	// Audit
	GetAuditEntries(ctx context.Context, instanceID string, limit int) ([]*types.AuditEntry, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
}

// Transaction provides atomic multi-operation support within a single database transaction.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Reads observe the transaction's own writes
//   - If fn returns an error, the transaction is rolled back
//   - If fn panics, the transaction is rolled back and the panic re-raised
//   - On successful return from fn, the transaction is committed
//   - fn may be invoked more than once when the store retries a transient
//     failure or ErrGraphConflict, so it must not leak state between attempts
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.UpdateNodeStatus(ctx, nodeID, types.StatusDone); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return tx.SetNodeStatuses(ctx, unlocked, types.StatusOpen)
//	})
type Transaction interface {
	// Template reads
	GetTemplate(ctx context.Context, id string) (*types.Template, error)
	GetTemplateNodes(ctx context.Context, templateID string) ([]*types.TemplateNode, error)
	GetTemplateEdges(ctx context.Context, templateID string) ([]*types.TemplateEdge, error)

	// Instance operations
	CreateInstance(ctx context.Context, inst *types.Instance) error
	GetInstance(ctx context.Context, id string) (*types.Instance, error)
	UpdateInstanceStatus(ctx context.Context, id string, status types.InstanceStatus) error
	BumpGraphVersion(ctx context.Context, id string, expected int64) error
	DeleteInstance(ctx context.Context, id string) error

	// Node operations
	CreateNodes(ctx context.Context, nodes []*types.InstanceNode) error // Assigns IDs in place, preserving order
	GetNode(ctx context.Context, id string) (*types.InstanceNode, error)
	GetNodes(ctx context.Context, instanceID string) ([]*types.InstanceNode, error)
	GetDependents(ctx context.Context, nodeID string) ([]*types.InstanceNode, error)
	UpdateNodeStatus(ctx context.Context, id string, status types.Status) error
	SetNodeStatuses(ctx context.Context, ids []string, status types.Status) error
	SetNodeParents(ctx context.Context, parents map[string]string) error
	UpdateNodeDetails(ctx context.Context, id string, update types.NodeDetailsUpdate) error

	// Edge operations
	CreateEdges(ctx context.Context, edges []*types.InstanceEdge) error
	GetEdges(ctx context.Context, instanceID string) ([]*types.InstanceEdge, error)
	GetPrerequisiteStates(ctx context.Context, dependentIDs []string) ([]*types.PrerequisiteState, error)

	// Audit
	AppendAudit(ctx context.Context, entry *types.AuditEntry) error
}
