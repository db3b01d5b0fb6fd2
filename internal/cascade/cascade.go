// Package cascade computes the lock state changes a node's status change
// forces on its direct dependents.
//
// Both functions are pure: they decide on caller-supplied snapshots and do no
// I/O. Each call cascades exactly one hop. A dependent that flips is not
// itself re-examined, so its own dependents change only if the caller invokes
// the engine again for that node. Callers that apply the result in a
// transaction are expected to keep this one-hop contract.
package cascade

import "github.com/steveyegge/workgraph/internal/types"

// Change is one status flip the caller must apply.
type Change struct {
	ID        string       `json:"id"`
	NewStatus types.Status `json:"new_status"`
}

// IDs returns the node ids of changes, preserving order.
func IDs(changes []Change) []string {
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ID
	}
	return ids
}

// CompletionCascades returns an unlock to OPEN for every direct dependent of
// completedID that is exactly LOCKED and whose prerequisites are all DONE.
//
// prereqs must hold every prerequisite edge of the dependents, not only the
// edge to completedID. completedID itself counts as DONE even when the
// snapshot was read before its status was written.
func CompletionCascades(completedID string, dependents []*types.InstanceNode, prereqs []*types.PrerequisiteState) []Change {
	byDependent := make(map[string][]*types.PrerequisiteState, len(dependents))
	for _, p := range prereqs {
		byDependent[p.DependentID] = append(byDependent[p.DependentID], p)
	}

	var changes []Change
	seen := make(map[string]bool, len(dependents))
	for _, d := range dependents {
		if d.Status != types.StatusLocked || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		satisfied := true
		for _, p := range byDependent[d.ID] {
			if p.PrerequisiteID == completedID {
				continue
			}
			if p.PrerequisiteStatus != types.StatusDone {
				satisfied = false
				break
			}
		}
		if satisfied {
			changes = append(changes, Change{ID: d.ID, NewStatus: types.StatusOpen})
		}
	}
	return changes
}

// ReversionCascades returns a lock for every direct dependent of revertedID
// that is OPEN or IN_PROGRESS. DONE and already LOCKED dependents are left alone.
func ReversionCascades(revertedID string, dependents []*types.InstanceNode) []Change {
	var changes []Change
	seen := make(map[string]bool, len(dependents))
	for _, d := range dependents {
		if d.ID == revertedID || seen[d.ID] {
			continue
		}
		switch d.Status {
		case types.StatusOpen, types.StatusInProgress:
			seen[d.ID] = true
			changes = append(changes, Change{ID: d.ID, NewStatus: types.StatusLocked})
		}
	}
	return changes
}
