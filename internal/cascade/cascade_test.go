package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/workgraph/internal/types"
)

func node(id string, s types.Status) *types.InstanceNode {
	return &types.InstanceNode{ID: id, Status: s}
}

func pre(dep, pre string, s types.Status) *types.PrerequisiteState {
	return &types.PrerequisiteState{DependentID: dep, PrerequisiteID: pre, PrerequisiteStatus: s}
}

func TestCompletionUnlocksOnlyLockedDependents(t *testing.T) {
	deps := []*types.InstanceNode{
		node("locked", types.StatusLocked),
		node("open", types.StatusOpen),
		node("wip", types.StatusInProgress),
		node("done", types.StatusDone),
	}
	prereqs := []*types.PrerequisiteState{
		pre("locked", "a", types.StatusDone),
		pre("open", "a", types.StatusDone),
		pre("wip", "a", types.StatusDone),
		pre("done", "a", types.StatusDone),
	}
	got := CompletionCascades("a", deps, prereqs)
	assert.Equal(t, []Change{{ID: "locked", NewStatus: types.StatusOpen}}, got)
}

func TestCompletionRequiresEveryPrerequisiteDone(t *testing.T) {
	// D depends on A and B. A completes while B is still open.
	deps := []*types.InstanceNode{node("d", types.StatusLocked)}
	got := CompletionCascades("a", deps, []*types.PrerequisiteState{
		pre("d", "a", types.StatusDone),
		pre("d", "b", types.StatusOpen),
	})
	assert.Empty(t, got)

	// B completes afterwards.
	got = CompletionCascades("b", deps, []*types.PrerequisiteState{
		pre("d", "a", types.StatusDone),
		pre("d", "b", types.StatusDone),
	})
	assert.Equal(t, []Change{{ID: "d", NewStatus: types.StatusOpen}}, got)
}

func TestCompletionTreatsCompletedNodeAsDone(t *testing.T) {
	// Snapshot read before the completed node's own status was persisted.
	deps := []*types.InstanceNode{node("b", types.StatusLocked)}
	got := CompletionCascades("a", deps, []*types.PrerequisiteState{pre("b", "a", types.StatusInProgress)})
	assert.Equal(t, []Change{{ID: "b", NewStatus: types.StatusOpen}}, got)
}

func TestCompletionIgnoresOtherPrerequisiteStates(t *testing.T) {
	deps := []*types.InstanceNode{node("x", types.StatusLocked), node("y", types.StatusLocked)}
	got := CompletionCascades("a", deps, []*types.PrerequisiteState{
		pre("x", "a", types.StatusDone),
		pre("y", "a", types.StatusDone),
		pre("y", "q", types.StatusLocked),
	})
	assert.Equal(t, []Change{{ID: "x", NewStatus: types.StatusOpen}}, got)
}

func TestCompletionIsOneHop(t *testing.T) {
	// Chain A <- B <- C. Completing A unlocks B only; C is not B's cascade target here.
	deps := []*types.InstanceNode{node("b", types.StatusLocked)}
	got := CompletionCascades("a", deps, []*types.PrerequisiteState{pre("b", "a", types.StatusDone)})
	assert.Equal(t, []string{"b"}, IDs(got))
}

func TestCompletionEmptyInputs(t *testing.T) {
	assert.Empty(t, CompletionCascades("a", nil, nil))
}

func TestCompletionDeduplicatesDependents(t *testing.T) {
	d := node("d", types.StatusLocked)
	got := CompletionCascades("a", []*types.InstanceNode{d, d}, []*types.PrerequisiteState{pre("d", "a", types.StatusDone)})
	assert.Len(t, got, 1)
}

func TestReversionLocksOpenAndInProgress(t *testing.T) {
	deps := []*types.InstanceNode{
		node("open", types.StatusOpen),
		node("wip", types.StatusInProgress),
		node("done", types.StatusDone),
		node("locked", types.StatusLocked),
	}
	got := ReversionCascades("a", deps)
	assert.Equal(t, []Change{
		{ID: "open", NewStatus: types.StatusLocked},
		{ID: "wip", NewStatus: types.StatusLocked},
	}, got)
}

func TestReversionEmpty(t *testing.T) {
	assert.Empty(t, ReversionCascades("a", nil))
	assert.Empty(t, ReversionCascades("a", []*types.InstanceNode{node("done", types.StatusDone)}))
}

// Walks the A <- B <- C scenario by re-invoking the engine for each node the
// caller changes, the way the service does for every status update.
func TestChainScenario(t *testing.T) {
	status := map[string]types.Status{"a": types.StatusOpen, "b": types.StatusLocked, "c": types.StatusLocked}
	dependents := map[string][]string{"a": {"b"}, "b": {"c"}}
	prereqOf := map[string][]string{"b": {"a"}, "c": {"b"}}

	snapshot := func(id string) ([]*types.InstanceNode, []*types.PrerequisiteState) {
		var deps []*types.InstanceNode
		var pres []*types.PrerequisiteState
		for _, d := range dependents[id] {
			deps = append(deps, node(d, status[d]))
			for _, p := range prereqOf[d] {
				pres = append(pres, pre(d, p, status[p]))
			}
		}
		return deps, pres
	}
	set := func(id string, s types.Status) {
		status[id] = s
		deps, pres := snapshot(id)
		var changes []Change
		if s == types.StatusDone {
			changes = CompletionCascades(id, deps, pres)
		} else {
			changes = ReversionCascades(id, deps)
		}
		for _, c := range changes {
			status[c.ID] = c.NewStatus
		}
	}

	set("a", types.StatusDone)
	assert.Equal(t, types.StatusOpen, status["b"])
	assert.Equal(t, types.StatusLocked, status["c"])

	set("b", types.StatusDone)
	assert.Equal(t, types.StatusOpen, status["c"])

	set("b", types.StatusOpen)
	assert.Equal(t, types.StatusLocked, status["c"])
	assert.Equal(t, types.StatusDone, status["a"])
}
