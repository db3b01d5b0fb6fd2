package graph

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/storage/sqlstore"
	"github.com/steveyegge/workgraph/internal/types"
)

// chain: c depends on b, b depends on a.
func chain() Graph {
	return Graph{"c": {"b"}, "b": {"a"}}
}

func TestBuild(t *testing.T) {
	g := Build([]*types.InstanceEdge{
		{DependentID: "d", PrerequisiteID: "a"},
		{DependentID: "d", PrerequisiteID: "b"},
		{DependentID: "b", PrerequisiteID: "a"},
	})
	assert.Equal(t, Graph{"d": {"a", "b"}, "b": {"a"}}, g)

	tg := Build([]*types.TemplateEdge{{DependentID: "y", PrerequisiteID: "x"}})
	assert.Equal(t, Graph{"y": {"x"}}, tg)
}

func TestWouldCreateCycle(t *testing.T) {
	tests := []struct {
		name     string
		g        Graph
		dep, pre string
		want     bool
	}{
		{"empty graph", Graph{}, "a", "b", false},
		{"empty graph self loop", Graph{}, "a", "a", false},
		{"closing a chain", chain(), "a", "c", true},
		{"closing a two-cycle", chain(), "a", "b", true},
		{"redundant shortcut", chain(), "c", "a", false},
		{"extending the chain", chain(), "d", "c", false},
		{"disconnected", Graph{"x": {"y"}}, "a", "b", false},
		{"diamond shortcut", Graph{"d": {"b", "c"}, "b": {"a"}, "c": {"a"}}, "d", "a", false},
		{"diamond back edge", Graph{"d": {"b", "c"}, "b": {"a"}, "c": {"a"}}, "a", "d", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.g.WouldCreateCycle(tt.dep, tt.pre))
		})
	}
}

func TestWouldCreateCycleDoesNotMutate(t *testing.T) {
	g := chain()
	before := Graph{"c": {"b"}, "b": {"a"}}
	g.WouldCreateCycle("a", "c")
	g.WouldCreateCycle("d", "a")
	assert.Equal(t, before, g)
}

// Reachability agrees with a brute-force transitive closure on a small DAG.
func TestWouldCreateCycleMatchesReachability(t *testing.T) {
	g := Graph{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
		"e": {"d"},
		"g": {"f"},
	}
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	reach := map[string]map[string]bool{}
	for _, id := range ids {
		reach[id] = map[string]bool{id: true}
	}
	for changed := true; changed; {
		changed = false
		for dep, pres := range g {
			for _, p := range pres {
				for r := range reach[p] {
					if !reach[dep][r] {
						reach[dep][r] = true
						changed = true
					}
				}
			}
		}
	}

	for _, dep := range ids {
		for _, pre := range ids {
			if dep == pre {
				continue
			}
			// dep reachable from pre means pre transitively depends on dep.
			want := reach[pre][dep]
			assert.Equal(t, want, g.WouldCreateCycle(dep, pre), "edge %s -> %s", dep, pre)
		}
	}
}

func TestWouldCreateCycleLongChain(t *testing.T) {
	g := Graph{}
	const n = 100000
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "n" + strconv.Itoa(i)
	}
	for i := 1; i < n; i++ {
		g[ids[i]] = []string{ids[i-1]}
	}
	assert.True(t, g.WouldCreateCycle(ids[0], ids[n-1]))
	assert.False(t, g.WouldCreateCycle(ids[n-1], ids[0]))
}

func TestPath(t *testing.T) {
	g := chain()
	assert.Equal(t, []string{"c", "b", "a"}, g.Path("c", "a"))
	assert.Nil(t, g.Path("a", "c"))
	assert.Equal(t, []string{"b"}, g.Path("b", "b"))
}

func TestFindCycle(t *testing.T) {
	assert.Nil(t, chain().FindCycle())
	assert.Nil(t, Graph{}.FindCycle())

	cyc := Graph{"a": {"b"}, "b": {"c"}, "c": {"a"}, "x": {"a"}}.FindCycle()
	require.NotEmpty(t, cyc)
	assert.Equal(t, cyc[0], cyc[len(cyc)-1])
	assert.Len(t, cyc, 4)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cyc[:3])
}

func TestTopoSort(t *testing.T) {
	g := Graph{"d": {"b", "c"}, "b": {"a"}, "c": {"a"}}
	order, err := g.TopoSort("z")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z", "b", "c", "d"}, order)

	_, err = Graph{"a": {"b"}, "b": {"a"}}.TopoSort()
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, sqlstore.Config{Path: filepath.Join(t.TempDir(), "g.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var a, b *types.InstanceNode
	var inst types.Instance
	var g Graph
	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		inst = types.Instance{TenantID: "t1", Title: "P", CreatedBy: "u"}
		if err := tx.CreateInstance(ctx, &inst); err != nil {
			return err
		}
		a = &types.InstanceNode{InstanceID: inst.ID, Title: "A", Kind: types.KindTask, Status: types.StatusOpen}
		b = &types.InstanceNode{InstanceID: inst.ID, Title: "B", Kind: types.KindTask, Status: types.StatusLocked}
		if err := tx.CreateNodes(ctx, []*types.InstanceNode{a, b}); err != nil {
			return err
		}
		if err := tx.CreateEdges(ctx, []*types.InstanceEdge{
			{InstanceID: inst.ID, DependentID: b.ID, PrerequisiteID: a.ID},
		}); err != nil {
			return err
		}
		g, err = Load(ctx, tx, inst.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, Graph{b.ID: {a.ID}}, g)
	assert.True(t, g.WouldCreateCycle(a.ID, b.ID))
}
