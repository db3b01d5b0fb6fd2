// Package workgraph provides a minimal public API for embedding the workflow
// dependency engine in another Go program.
//
// It re-exports the types a caller needs and opens a Service over an
// embedded SQLite database. The wg CLI is built on the same packages.
package workgraph

import (
	"context"

	"github.com/steveyegge/workgraph/internal/clone"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/storage/factory"
	"github.com/steveyegge/workgraph/internal/types"
	"github.com/steveyegge/workgraph/internal/workflow"
)

// Core types
type (
	Service            = workflow.Service
	Option             = workflow.Option
	TenantContext      = types.TenantContext
	Role               = types.Role
	Status             = types.Status
	TemplateGraph      = types.TemplateGraph
	Template           = types.Template
	TemplateNode       = types.TemplateNode
	TemplateEdge       = types.TemplateEdge
	InstanceGraph      = types.InstanceGraph
	InstanceNode       = types.InstanceNode
	InstanceFilter     = types.InstanceFilter
	InstantiateRequest = clone.Request
	InstantiateResult  = clone.Result
	NewNode            = workflow.NewNode
	StatusChange       = workflow.StatusChange
	EdgeResult         = workflow.EdgeResult
	CycleError         = workflow.CycleError
	Storage            = storage.Storage
)

// Status constants
const (
	StatusLocked     = types.StatusLocked
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusDone       = types.StatusDone
)

// Role constants
const (
	RoleStaff      = types.RoleStaff
	RoleManager    = types.RoleManager
	RoleAdmin      = types.RoleAdmin
	RoleSuperAdmin = types.RoleSuperAdmin
)

// Errors returned by Service methods. Match with errors.Is.
var (
	ErrNotFound           = workflow.ErrNotFound
	ErrForbidden          = workflow.ErrForbidden
	ErrSelfDependency     = workflow.ErrSelfDependency
	ErrCycleDetected      = workflow.ErrCycleDetected
	ErrTenantMismatch     = workflow.ErrTenantMismatch
	ErrTransactionAborted = workflow.ErrTransactionAborted
	ErrInvalidStatus      = workflow.ErrInvalidStatus
	ErrNodeLocked         = workflow.ErrNodeLocked
	ErrInvalidArgument    = workflow.ErrInvalidArgument
)

// Service options
var (
	WithLogger       = workflow.WithLogger
	WithAuditSink    = workflow.WithAuditSink
	WithTimeout      = workflow.WithTimeout
	WithCloneTimeout = workflow.WithCloneTimeout
)

// OpenSQLite opens (creating if needed) a SQLite database at dbPath and
// returns a Service over it. Close the returned Storage when done.
func OpenSQLite(ctx context.Context, dbPath string, opts ...Option) (*Service, Storage, error) {
	store, err := factory.New(ctx, "sqlite", factory.Options{Path: dbPath})
	if err != nil {
		return nil, nil, err
	}
	return workflow.New(store, opts...), store, nil
}
