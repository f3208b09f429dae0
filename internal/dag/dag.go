// SPDX-License-Identifier: MPL-2.0

// Package dag orders add-ons so that every add-on comes after the add-ons it
// depends on. Nodes are add-on IDs; an edge from A to B means A must be
// installed before B.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is returned when dependencies form a cycle.
var ErrCycle = errors.New("dependency cycle")

type (
	// CycleError lists the add-ons that could not be ordered because they
	// take part in, or depend on, a cycle.
	CycleError struct {
		Cycle []string
	}

	// Graph is a directed graph over add-on IDs.
	Graph struct {
		// adjacency maps a node to the nodes that must come after it.
		adjacency map[string][]string
		// nodes keeps insertion order so that ordering is deterministic.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCycle.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds id if it is not present yet.
func (g *Graph) AddNode(id string) {
	if g.nodeSet[id] {
		return
	}
	g.nodeSet[id] = true
	g.nodes = append(g.nodes, id)
}

// AddEdge records that from must come before to, adding both nodes.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	return g.nodeSet[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// TopologicalSort returns the nodes in dependency order using Kahn's
// algorithm. Nodes that become ready at the same time keep their insertion
// order. A *CycleError is returned when no complete order exists.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, next := range g.adjacency {
		for _, n := range next {
			inDegree[n]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, n := range g.adjacency[node] {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var stuck []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				stuck = append(stuck, node)
			}
		}
		return nil, &CycleError{Cycle: stuck}
	}
	return result, nil
}

// Order sorts ids so that each one follows the ids it depends on. deps
// returns the direct dependencies of an id; dependencies outside ids are
// ignored. ids are seeded in sorted order so the result does not depend on
// the caller's ordering.
func Order(ids []string, deps func(id string) []string) ([]string, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	g := New()
	for _, id := range sorted {
		g.AddNode(id)
	}
	for _, id := range sorted {
		for _, d := range deps(id) {
			if g.Has(d) && d != id {
				g.AddEdge(d, id)
			}
		}
	}
	return g.TopologicalSort()
}

// ReverseOrder is Order with dependents first, the order in which add-ons
// are removed.
func ReverseOrder(ids []string, deps func(id string) []string) ([]string, error) {
	order, err := Order(ids, deps)
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}
