package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/storage"
)

// Error taxonomy. Callers match with errors.Is.
var (
	// ErrNotFound: template, instance or node absent, or owned by another tenant.
	ErrNotFound = storage.ErrNotFound
	// ErrForbidden: role or ownership check failed.
	ErrForbidden = access.ErrForbidden
	// ErrSelfDependency: a node was named as its own prerequisite.
	ErrSelfDependency = errors.New("node cannot depend on itself")
	// ErrCycleDetected: the edge would close a loop.
	ErrCycleDetected = errors.New("dependency cycle detected")
	// ErrTenantMismatch: a referenced entity belongs to another tenant or instance.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrTransactionAborted: the store failed or timed out mid-operation.
	ErrTransactionAborted = errors.New("transaction aborted")
	// ErrInvalidStatus: unknown status, or a direct request for LOCKED.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNodeLocked: a LOCKED node can only be released by its prerequisites.
	ErrNodeLocked = errors.New("node is locked by unfinished prerequisites")
	// ErrInvalidArgument: malformed request.
	ErrInvalidArgument = errors.New("invalid argument")
)

// CycleError reports the edge that was refused and the existing path of
// prerequisites that it would have closed into a loop.
type CycleError struct {
	DependentID    string
	PrerequisiteID string
	Path           []string // From PrerequisiteID down to DependentID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s -> %s would close %s",
		ErrCycleDetected, e.DependentID, e.PrerequisiteID, strings.Join(e.Path, " -> "))
}

// Is matches ErrCycleDetected.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

var domainErrors = []error{
	ErrNotFound,
	ErrForbidden,
	ErrSelfDependency,
	ErrCycleDetected,
	ErrTenantMismatch,
	ErrTransactionAborted,
	ErrInvalidStatus,
	ErrNodeLocked,
	ErrInvalidArgument,
}

// classify passes domain errors through and reports everything else,
// including timeouts and exhausted retries, as ErrTransactionAborted.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
