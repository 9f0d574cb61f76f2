// Package model defines the flowgraph representation used to validate and
// order a set of connected blocks before they run.
//
// A Graph is a list of nodes, one per block, and a list of edges, each
// joining one output port of a node to one input port of another. The
// engine builds a Graph from its connections, validates it, and uses the
// topological order to bind blocks and allocate stream buffers upstream
// first.
//
// Rules enforced by Validate:
//   - node IDs are unique and every edge references known nodes
//   - every input port is fed by exactly one edge
//   - input ports and output ports of each node are numbered contiguously from 0
//   - the graph has no cycles
package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidGraph is wrapped by every validation failure.
var ErrInvalidGraph = errors.New("invalid graph")

// Node represents one block of the flowgraph.
type Node struct {
	ID   uint64
	Name string
}

// Edge connects output SrcPort of node Src to input DstPort of node Dst.
type Edge struct {
	Src     uint64
	SrcPort int
	Dst     uint64
	DstPort int
}

func (e Edge) String() string {
	return fmt.Sprintf("%d:%d->%d:%d", e.Src, e.SrcPort, e.Dst, e.DstPort)
}

// Graph is the flowgraph topology, with utility methods
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// NodeCount returns the number of nodes in the graph
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// Inputs returns the edges feeding node id, ordered by input port.
func (g *Graph) Inputs(id uint64) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Dst == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DstPort < out[j].DstPort })
	return out
}

// Outputs returns the edges leaving node id, ordered by output port.
func (g *Graph) Outputs(id uint64) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Src == id {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SrcPort < out[j].SrcPort })
	return out
}

// PortCounts returns how many input and output ports node id uses.
func (g *Graph) PortCounts(id uint64) (ninputs, noutputs int) {
	for _, e := range g.Edges {
		if e.Dst == id && e.DstPort+1 > ninputs {
			ninputs = e.DstPort + 1
		}
		if e.Src == id && e.SrcPort+1 > noutputs {
			noutputs = e.SrcPort + 1
		}
	}
	return ninputs, noutputs
}

// Validate checks graph consistency
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: graph has no nodes", ErrInvalidGraph)
	}

	ids := make(map[uint64]bool)
	for _, node := range g.Nodes {
		if ids[node.ID] {
			return fmt.Errorf("%w: duplicate node ID: %d", ErrInvalidGraph, node.ID)
		}
		ids[node.ID] = true
	}

	type port struct {
		node uint64
		port int
	}
	fed := make(map[port]bool)
	usedOut := make(map[port]bool)
	for _, e := range g.Edges {
		if !ids[e.Src] || !ids[e.Dst] {
			return fmt.Errorf("%w: edge %s references a non-existent node", ErrInvalidGraph, e)
		}
		if e.SrcPort < 0 || e.DstPort < 0 {
			return fmt.Errorf("%w: edge %s has a negative port", ErrInvalidGraph, e)
		}
		in := port{e.Dst, e.DstPort}
		if fed[in] {
			return fmt.Errorf("%w: input %d of node %d is fed twice", ErrInvalidGraph, e.DstPort, e.Dst)
		}
		fed[in] = true
		usedOut[port{e.Src, e.SrcPort}] = true
	}

	for _, node := range g.Nodes {
		nin, nout := g.PortCounts(node.ID)
		for i := 0; i < nin; i++ {
			if !fed[port{node.ID, i}] {
				return fmt.Errorf("%w: input %d of node %d (%s) is not connected", ErrInvalidGraph, i, node.ID, node.Name)
			}
		}
		for o := 0; o < nout; o++ {
			if !usedOut[port{node.ID, o}] {
				return fmt.Errorf("%w: output %d of node %d (%s) is not connected", ErrInvalidGraph, o, node.ID, node.Name)
			}
		}
	}

	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// TopologicalOrder returns node IDs so that every edge points forward.
// Ties keep the order of g.Nodes.
func (g *Graph) TopologicalOrder() ([]uint64, error) {
	// Build dependency graph
	adj := make(map[uint64][]uint64)
	inDegree := make(map[uint64]int)
	for _, node := range g.Nodes {
		inDegree[node.ID] = 0
	}
	for _, e := range g.Edges {
		adj[e.Src] = append(adj[e.Src], e.Dst)
		inDegree[e.Dst]++
	}

	// Kahn's algorithm for topological sort
	queue := make([]uint64, 0)
	for _, node := range g.Nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	var executionOrder []uint64
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		executionOrder = append(executionOrder, current)

		for _, neighbor := range adj[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(executionOrder) != len(g.Nodes) {
		return nil, fmt.Errorf("%w: graph contains a cycle", ErrInvalidGraph)
	}
	return executionOrder, nil
}
