package main

import "sort"

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// pathFrame is one entry of the explicit DFS stack.
type pathFrame struct {
	id       CrateID
	next     int // index of the next dependent to examine
	best     float64
	bestNext CrateID
	hasNext  bool
}

// ComputeCriticalPath finds the chain with the longest accumulated compile
// time and stores it in graph.CriticalPath.
//
// Edges point from a dependent to its dependency, so compile order flows the
// other way: the cost of a node is its own duration plus the largest cost
// among the nodes that depend on it. Nodes and dependents are visited in
// lexical ID order and ties keep the first candidate, which makes the result
// stable across runs. A graph without any timing yields the lexically first
// node as a single-element path.
func ComputeCriticalPath(graph *BuildGraph) {
	dependents := reverseAdjacency(graph)
	ids := graph.SortedIDs()

	cost := make(map[CrateID]float64, len(ids))
	nextOnPath := make(map[CrateID]CrateID, len(ids))
	state := make(map[CrateID]visitState, len(ids))

	for _, root := range ids {
		if state[root] != unvisited {
			continue
		}
		state[root] = inProgress
		stack := []*pathFrame{{id: root}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			deps := dependents[top.id]

			descended := false
			for top.next < len(deps) {
				child := deps[top.next]
				switch state[child] {
				case unvisited:
					state[child] = inProgress
					stack = append(stack, &pathFrame{id: child})
					descended = true
				case inProgress:
					// Cycle: the dependent is still on the stack, count it as 0.
					top.next++
				case done:
					if c := cost[child]; c > top.best {
						top.best = c
						top.bestNext = child
						top.hasNext = true
					}
					top.next++
				}
				if descended {
					break
				}
			}
			if descended {
				continue
			}

			cost[top.id] = graph.Nodes[top.id].Duration() + top.best
			if top.hasNext {
				nextOnPath[top.id] = top.bestNext
			}
			state[top.id] = done
			stack = stack[:len(stack)-1]
		}
	}

	path := []CrateID{}
	if len(ids) > 0 {
		start := ids[0]
		for _, id := range ids[1:] {
			if cost[id] > cost[start] {
				start = id
			}
		}
		seen := make(map[CrateID]bool)
		for cur, ok := start, true; ok && !seen[cur]; cur, ok = nextOnPath[cur] {
			seen[cur] = true
			path = append(path, cur)
		}
	}
	graph.CriticalPath = path
}

// reverseAdjacency maps each dependency to its sorted, de-duplicated set of
// dependents. Edges touching unknown nodes are ignored.
func reverseAdjacency(graph *BuildGraph) map[CrateID][]CrateID {
	sets := make(map[CrateID]map[CrateID]struct{})
	for _, e := range graph.Edges {
		if _, ok := graph.Nodes[e.From]; !ok {
			continue
		}
		if _, ok := graph.Nodes[e.To]; !ok {
			continue
		}
		set, ok := sets[e.To]
		if !ok {
			set = make(map[CrateID]struct{})
			sets[e.To] = set
		}
		set[e.From] = struct{}{}
	}

	adj := make(map[CrateID][]CrateID, len(sets))
	for to, set := range sets {
		list := make([]CrateID, 0, len(set))
		for from := range set {
			list = append(list, from)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		adj[to] = list
	}
	return adj
}
