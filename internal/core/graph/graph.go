// Package graph holds the in-memory view of a slice of the fact graph:
// report objects, the objects they reference, and their facts.
package graph

import (
	"sort"
	"strings"
	"time"
)

// Direction of reference traversal.
type Direction int

const (
	// Down follows references from a report to the objects it contains.
	Down Direction = iota
	// Up follows references from an object to the objects containing it.
	Up
)

// Fact is one (attribute path, value) pair of an information object.
type Fact struct {
	FactID    int64
	ValueID   int64
	Term      string
	Attribute string
	Value     string
}

// Path is "Term@attribute", or just the term for element values.
func (f Fact) Path() string {
	if f.Attribute == "" {
		return f.Term
	}
	return f.Term + "@" + f.Attribute
}

// Node is an information object revision.
type Node struct {
	IObjectID    int64
	IdentifierID int64
	ObjectType   string
	Family       string
	Name         string
	CreatedAt    time.Time
	Facts        []Fact
}

// FactsWithSuffix returns the facts whose term ends in suffix.
func (n *Node) FactsWithSuffix(suffix string) []Fact {
	var out []Fact
	for _, f := range n.Facts {
		if strings.HasSuffix(f.Term, suffix) {
			out = append(out, f)
		}
	}
	return out
}

// Edge is a reference from one object's fact to another object.
type Edge struct {
	From int64
	To   int64
	Term string
}

// Report is a top-level object of a report revision.
type Report struct {
	IObjectID    int64
	IdentifierID int64
	ObjectType   string
	Name         string
	CreatedAt    time.Time
}

// Graph is a directed graph of nodes keyed by IObjectID.
type Graph struct {
	nodes map[int64]*Node
	out   map[int64][]Edge
	in    map[int64][]Edge
}

func New() *Graph {
	return &Graph{
		nodes: map[int64]*Node{},
		out:   map[int64][]Edge{},
		in:    map[int64][]Edge{},
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n *Node) {
	g.nodes[n.IObjectID] = n
}

// AddEdge records a reference. Duplicate edges are ignored.
func (g *Graph) AddEdge(e Edge) {
	for _, existing := range g.out[e.From] {
		if existing == e {
			return
		}
	}
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

func (g *Graph) Node(id int64) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all nodes ordered by IObjectID.
func (g *Graph) Nodes() []*Node {
	ids := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) Children(id int64) []*Node {
	return g.collect(g.out[id], func(e Edge) int64 { return e.To })
}

func (g *Graph) Parents(id int64) []*Node {
	return g.collect(g.in[id], func(e Edge) int64 { return e.From })
}

// Ancestors returns every node from which id is reachable, nearest first.
func (g *Graph) Ancestors(id int64) []*Node {
	seen := map[int64]bool{id: true}
	queue := []int64{id}
	var out []*Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.in[cur] {
			if seen[e.From] {
				continue
			}
			seen[e.From] = true
			queue = append(queue, e.From)
			if n, ok := g.nodes[e.From]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

func (g *Graph) collect(edges []Edge, pick func(Edge) int64) []*Node {
	var out []*Node
	for _, e := range edges {
		if n, ok := g.nodes[pick(e)]; ok {
			out = append(out, n)
		}
	}
	return out
}
