package main

import (
	"fmt"
	"sort"
)

// CrateID identifies a package within a build. For cargo it is the resolver's
// package id string; for Go packages it is the import path.
type CrateID string

// CrateNode represents one package participating in the build.
type CrateNode struct {
	ID                CrateID  `json:"id"`
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	IsWorkspaceMember bool     `json:"is_workspace_member"`
	DurationMs        *float64 `json:"duration_ms"` // nil until timings are applied
	StartMs           *float64 `json:"start_ms"`    // offset from build start, nil until timings are applied
	Fresh             bool     `json:"fresh"`       // artifact reused from cache
	Features          []string `json:"features"`
}

// Duration returns the node's compile time in milliseconds, or 0 when unset.
func (n *CrateNode) Duration() float64 {
	if n == nil || n.DurationMs == nil {
		return 0
	}
	return *n.DurationMs
}

// DepEdge represents a "From depends on To" relationship.
type DepEdge struct {
	From     CrateID  `json:"from"`
	To       CrateID  `json:"to"`
	DepKinds []string `json:"dep_kinds"` // normal, dev, build
}

// BuildGraph is the dependency graph of one build together with its timings.
type BuildGraph struct {
	Nodes map[CrateID]*CrateNode `json:"nodes"`
	Edges []DepEdge              `json:"edges"`
	Roots []CrateID              `json:"roots"`
	// CriticalPath lists node IDs on the longest accumulated compile-time chain,
	// in compile order.
	CriticalPath []CrateID `json:"critical_path"`
}

// NewBuildGraph returns an empty graph with all collections allocated so it
// serializes with [] and {} rather than null.
func NewBuildGraph() *BuildGraph {
	return &BuildGraph{
		Nodes:        make(map[CrateID]*CrateNode),
		Edges:        []DepEdge{},
		Roots:        []CrateID{},
		CriticalPath: []CrateID{},
	}
}

// SortedIDs returns all node IDs in lexical order.
func (g *BuildGraph) SortedIDs() []CrateID {
	ids := make([]CrateID, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CriticalPathDuration sums the durations of every node on the critical path.
func (g *BuildGraph) CriticalPathDuration() float64 {
	var total float64
	for _, id := range g.CriticalPath {
		total += g.Nodes[id].Duration()
	}
	return total
}

// Validate reports the first edge that references a node missing from the graph.
func (g *BuildGraph) Validate() error {
	for i, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return fmt.Errorf("edge %d: unknown source %q", i, e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return fmt.Errorf("edge %d: unknown target %q", i, e.To)
		}
	}
	return nil
}
