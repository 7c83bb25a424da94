package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// ResolvedMetadata is the subset of `cargo metadata --format-version 1`
// needed to build a dependency graph. The Go package collector produces the
// same shape.
type ResolvedMetadata struct {
	Packages         []Package `json:"packages"`
	WorkspaceMembers []string  `json:"workspace_members"`
	Resolve          *Resolve  `json:"resolve"`
	TargetDirectory  string    `json:"target_directory"`
}

// Package is one entry of the metadata package list.
type Package struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Resolve is the resolved dependency graph over Packages.
type Resolve struct {
	Nodes []ResolveNode `json:"nodes"`
}

// ResolveNode lists the resolved dependencies and enabled features of one package.
type ResolveNode struct {
	ID       string    `json:"id"`
	Deps     []NodeDep `json:"deps"`
	Features []string  `json:"features"`
}

// NodeDep points at a dependency package.
type NodeDep struct {
	Name     string        `json:"name"`
	Pkg      string        `json:"pkg"`
	DepKinds []DepKindInfo `json:"dep_kinds"`
}

// DepKindInfo holds a dependency kind; a nil Kind is a normal dependency.
type DepKindInfo struct {
	Kind   *string `json:"kind"`
	Target *string `json:"target"`
}

// DecodeMetadata decodes cargo metadata JSON.
func DecodeMetadata(r io.Reader) (*ResolvedMetadata, error) {
	var meta ResolvedMetadata
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding package metadata: %w", err)
	}
	return &meta, nil
}

// LoadDependencyGraph builds a BuildGraph from resolved metadata. When
// includeDeps is false, only workspace members and the edges between them
// are kept.
func LoadDependencyGraph(meta *ResolvedMetadata, includeDeps bool) (*BuildGraph, error) {
	if meta == nil || meta.Resolve == nil {
		return nil, &ResolutionError{Msg: "no dependency resolution found"}
	}

	pkgs := make(map[string]*Package, len(meta.Packages))
	for i := range meta.Packages {
		pkgs[meta.Packages[i].ID] = &meta.Packages[i]
	}

	members := make(map[string]bool, len(meta.WorkspaceMembers))
	for _, id := range meta.WorkspaceMembers {
		members[id] = true
	}

	graph := NewBuildGraph()

	for _, node := range meta.Resolve.Nodes {
		isMember := members[node.ID]
		if !includeDeps && !isMember {
			continue
		}
		pkg, ok := pkgs[node.ID]
		if !ok {
			continue
		}
		id := CrateID(node.ID)

		graph.Nodes[id] = &CrateNode{
			ID:                id,
			Name:              pkg.Name,
			Version:           pkg.Version,
			IsWorkspaceMember: isMember,
			Features:          normalizeFeatures(node.Features),
		}

		for _, dep := range node.Deps {
			if !includeDeps && !members[dep.Pkg] {
				continue
			}
			graph.Edges = append(graph.Edges, DepEdge{
				From:     id,
				To:       CrateID(dep.Pkg),
				DepKinds: depKindNames(dep.DepKinds),
			})
		}
	}

	// Drop edges whose target never became a node (missing package entry).
	kept := graph.Edges[:0]
	for _, e := range graph.Edges {
		if _, ok := graph.Nodes[e.To]; ok {
			kept = append(kept, e)
		}
	}
	graph.Edges = kept

	for _, id := range meta.WorkspaceMembers {
		graph.Roots = append(graph.Roots, CrateID(id))
	}
	sort.Slice(graph.Roots, func(i, j int) bool { return graph.Roots[i] < graph.Roots[j] })

	return graph, nil
}

func depKindNames(kinds []DepKindInfo) []string {
	seen := make(map[string]bool, len(kinds))
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		name := "normal"
		if k.Kind != nil && *k.Kind != "" {
			name = *k.Kind
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		names = append(names, "normal")
	}
	sort.Strings(names)
	return names
}

func normalizeFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
