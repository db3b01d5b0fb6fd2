package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/steveyegge/workgraph/internal/workflow"
)

// errorCodes maps workflow errors to stable machine-readable codes and exit codes.
var errorCodes = []struct {
	err  error
	code string
	exit int
}{
	{workflow.ErrInvalidArgument, "invalid_argument", 2},
	{workflow.ErrNotFound, "not_found", 3},
	{workflow.ErrForbidden, "forbidden", 4},
	{workflow.ErrSelfDependency, "self_dependency", 5},
	{workflow.ErrCycleDetected, "cycle_detected", 5},
	{workflow.ErrTenantMismatch, "tenant_mismatch", 5},
	{workflow.ErrInvalidStatus, "invalid_status", 5},
	{workflow.ErrNodeLocked, "node_locked", 5},
	{workflow.ErrTransactionAborted, "transaction_aborted", 6},
}

func errorCode(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.exit
		}
	}
	return "", 1
}

func exitCode(err error) int {
	_, code := errorCode(err)
	return code
}

// reportError writes err to w, as JSON when --json is set.
func reportError(w io.Writer, err error) {
	code, _ := errorCode(err)
	if jsonOutput {
		errObj := map[string]string{"error": err.Error()}
		if code != "" {
			errObj["code"] = code
		}
		var cycle *workflow.CycleError
		if errors.As(err, &cycle) {
			errObj["dependent_id"] = cycle.DependentID
			errObj["prerequisite_id"] = cycle.PrerequisiteID
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(errObj) // Best effort: the exit code still reports failure
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// WarnError writes a warning message to stderr and returns.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
