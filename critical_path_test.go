package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCriticalPath_Chain(t *testing.T) {
	// A depends on B, B depends on C: C compiles first.
	g := newTestGraph(map[string]float64{"A": 10, "B": 20, "C": 30}, "A->B", "B->C")

	ComputeCriticalPath(g)

	assert.Equal(t, []CrateID{"C", "B", "A"}, g.CriticalPath)
	assert.InDelta(t, 60.0, g.CriticalPathDuration(), 1e-9)
}

func TestComputeCriticalPath_PicksHeavierBranch(t *testing.T) {
	g := newTestGraph(
		map[string]float64{"app": 5, "fast": 1, "slow": 40, "base": 10},
		"app->fast", "app->slow", "fast->base", "slow->base",
	)

	ComputeCriticalPath(g)

	assert.Equal(t, []CrateID{"base", "slow", "app"}, g.CriticalPath)
	assert.InDelta(t, 55.0, g.CriticalPathDuration(), 1e-9)
}

func TestComputeCriticalPath_DiamondTieIsDeterministic(t *testing.T) {
	build := func() *BuildGraph {
		return newTestGraph(
			map[string]float64{"A": 1, "B": 5, "C": 5, "D": 2},
			"A->B", "A->C", "B->D", "C->D",
		)
	}

	first := build()
	ComputeCriticalPath(first)
	for i := 0; i < 20; i++ {
		g := build()
		ComputeCriticalPath(g)
		require.Equal(t, first.CriticalPath, g.CriticalPath, "run %d", i)
	}
	// Lexically smaller dependent wins the tie.
	assert.Equal(t, []CrateID{"D", "B", "A"}, first.CriticalPath)
}

func TestComputeCriticalPath_ParallelEdgesNotDoubleCounted(t *testing.T) {
	g := newTestGraph(map[string]float64{"a": 10, "b": 20}, "a->b", "a->b")
	g.Edges[1].DepKinds = []string{"build"}

	ComputeCriticalPath(g)

	assert.Equal(t, []CrateID{"b", "a"}, g.CriticalPath)
	assert.InDelta(t, 30.0, g.CriticalPathDuration(), 1e-9)
}

func TestComputeCriticalPath_UnsetDurationsCountAsZero(t *testing.T) {
	g := newTestGraph(map[string]float64{"a": 10}, "a->b", "b->c")

	ComputeCriticalPath(g)

	assert.Equal(t, []CrateID{"a"}, g.CriticalPath)
}

func TestComputeCriticalPath_Degenerate(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		g := NewBuildGraph()
		ComputeCriticalPath(g)
		assert.NotNil(t, g.CriticalPath)
		assert.Empty(t, g.CriticalPath)
	})

	t.Run("no timing", func(t *testing.T) {
		g := newTestGraph(nil, "b->a", "c->b", "z->y")
		ComputeCriticalPath(g)
		assert.Equal(t, []CrateID{"a"}, g.CriticalPath)
	})
}

func TestComputeCriticalPath_Cycles(t *testing.T) {
	t.Run("self loop", func(t *testing.T) {
		g := newTestGraph(map[string]float64{"a": 10, "b": 5}, "a->a", "a->b")
		ComputeCriticalPath(g)
		assert.Equal(t, []CrateID{"b", "a"}, g.CriticalPath)
	})

	t.Run("two node cycle", func(t *testing.T) {
		g := newTestGraph(map[string]float64{"a": 10, "b": 5}, "a->b", "b->a")
		ComputeCriticalPath(g)
		require.NotEmpty(t, g.CriticalPath)
		assert.LessOrEqual(t, len(g.CriticalPath), 2)
	})
}

func TestComputeCriticalPath_IgnoresUnknownEndpoints(t *testing.T) {
	g := newTestGraph(map[string]float64{"a": 10, "b": 20}, "a->b")
	g.Edges = append(g.Edges, DepEdge{From: "ghost", To: "b"}, DepEdge{From: "a", To: "ghost"})

	ComputeCriticalPath(g)

	assert.Equal(t, []CrateID{"b", "a"}, g.CriticalPath)
}

func TestComputeCriticalPath_DeepChain(t *testing.T) {
	const depth = 200000
	g := NewBuildGraph()
	for i := 0; i < depth; i++ {
		id := CrateID(fmt.Sprintf("c%06d", i))
		g.Nodes[id] = &CrateNode{ID: id, DurationMs: f64(1)}
		if i > 0 {
			g.Edges = append(g.Edges, DepEdge{From: id, To: CrateID(fmt.Sprintf("c%06d", i-1))})
		}
	}

	ComputeCriticalPath(g)

	require.Len(t, g.CriticalPath, depth)
	assert.Equal(t, CrateID("c000000"), g.CriticalPath[0])
	assert.Equal(t, CrateID(fmt.Sprintf("c%06d", depth-1)), g.CriticalPath[depth-1])
}
