package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrateRows(t *testing.T) {
	g := newTestGraph(map[string]float64{"a": 10, "b": 20}, "a->b", "c->b")
	g.Nodes["a"].StartMs = f64(20)
	g.Nodes["a"].IsWorkspaceMember = true
	ComputeCriticalPath(g)
	require.Equal(t, []CrateID{"b", "a"}, g.CriticalPath)

	rows := crateRows(g)
	require.Len(t, rows, 3)

	byID := map[string]map[string]any{}
	for _, r := range rows {
		byID[r["id"].(string)] = r
	}

	assert.Equal(t, 2, byID["a"]["critical_rank"])
	assert.Equal(t, 1, byID["b"]["critical_rank"])
	assert.Equal(t, 0, byID["c"]["critical_rank"])
	assert.Equal(t, 10.0, byID["a"]["duration_ms"])
	assert.Equal(t, 20.0, byID["a"]["start_ms"])
	assert.Equal(t, true, byID["a"]["member"])
	assert.Nil(t, byID["c"]["duration_ms"])
	assert.Nil(t, byID["c"]["start_ms"])
}

func TestEdgeRows(t *testing.T) {
	g := newTestGraph(map[string]float64{"a": 10, "b": 20}, "a->b", "c->b")
	ComputeCriticalPath(g)

	rows := edgeRows(g)
	require.Len(t, rows, 2)

	assert.Equal(t, "a", rows[0]["from"])
	assert.Equal(t, "b", rows[0]["to"])
	assert.Equal(t, true, rows[0]["critical"])
	assert.Equal(t, []string{"normal"}, rows[0]["kinds"])

	assert.Equal(t, "c", rows[1]["from"])
	assert.Equal(t, false, rows[1]["critical"])
}
