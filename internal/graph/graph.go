// Package graph is an in-memory undirected graph keyed by external entity
// identifiers. Each node owns typed properties; edges carry no data and are
// idempotent by unordered key pair.
package graph

import (
	"fmt"
	"sort"

	"github.com/agenthands/snowball/internal/core/common"
)

// NodeID is the internal handle of a node. Handles are never reused and
// increase in insertion order.
type NodeID int

type node struct {
	id    NodeID
	key   string
	props map[string]Value
	adj   map[NodeID]struct{}
}

type Graph struct {
	schema Schema

	nextID   NodeID
	index    map[string]NodeID
	nodes    map[NodeID]*node
	order    []NodeID
	numEdges int
}

// New returns an empty graph that validates property writes against schema.
// A nil schema accepts any valid value.
func New(schema Schema) *Graph {
	return &Graph{
		schema: schema,
		index:  make(map[string]NodeID),
		nodes:  make(map[NodeID]*node),
	}
}

func (g *Graph) Schema() Schema { return g.schema }

func (g *Graph) NumNodes() int { return len(g.nodes) }
func (g *Graph) NumEdges() int { return g.numEdges }

// AddNode returns the handle for key, creating the node if needed.
func (g *Graph) AddNode(key string) NodeID {
	if id, ok := g.index[key]; ok {
		return id
	}
	id := g.nextID
	g.nextID++
	g.nodes[id] = &node{
		id:    id,
		key:   key,
		props: make(map[string]Value),
		adj:   make(map[NodeID]struct{}),
	}
	g.index[key] = id
	g.order = append(g.order, id)
	return id
}

func (g *Graph) Lookup(key string) (NodeID, bool) {
	id, ok := g.index[key]
	return id, ok
}

func (g *Graph) HasNode(key string) bool {
	_, ok := g.index[key]
	return ok
}

// Key returns the external key of a live node handle.
func (g *Graph) Key(id NodeID) (string, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return n.key, true
}

// AddEdge links a and b, creating either endpoint if needed. It reports
// whether a new edge was created; repeated pairs and self-pairs are no-ops.
func (g *Graph) AddEdge(a, b string) bool {
	return g.link(g.AddNode(a), g.AddNode(b))
}

func (g *Graph) link(a, b NodeID) bool {
	if a == b {
		return false
	}
	na, nb := g.nodes[a], g.nodes[b]
	if _, ok := na.adj[b]; ok {
		return false
	}
	na.adj[b] = struct{}{}
	nb.adj[a] = struct{}{}
	g.numEdges++
	return true
}

func (g *Graph) HasEdge(a, b string) bool {
	ia, ok := g.index[a]
	if !ok {
		return false
	}
	ib, ok := g.index[b]
	if !ok {
		return false
	}
	_, ok = g.nodes[ia].adj[ib]
	return ok
}

// RemoveNode deletes key and all of its incident edges.
func (g *Graph) RemoveNode(key string) error {
	id, ok := g.index[key]
	if !ok {
		return fmt.Errorf("remove %q: %w", key, common.ErrUnknownEntity)
	}
	g.removeID(id)
	return nil
}

func (g *Graph) removeID(id NodeID) {
	n := g.nodes[id]
	for nb := range n.adj {
		delete(g.nodes[nb].adj, id)
		g.numEdges--
	}
	delete(g.nodes, id)
	delete(g.index, n.key)
	if len(g.order) > 2*len(g.nodes)+16 {
		g.compact()
	}
}

func (g *Graph) compact() {
	live := g.order[:0]
	for _, id := range g.order {
		if _, ok := g.nodes[id]; ok {
			live = append(live, id)
		}
	}
	g.order = live
}

// Property returns the named property of key.
func (g *Graph) Property(key, name string) (Value, bool) {
	id, ok := g.index[key]
	if !ok {
		return Value{}, false
	}
	v, ok := g.nodes[id].props[name]
	return v, ok
}

// SetProperty writes a property after validating it against the schema.
func (g *Graph) SetProperty(key, name string, v Value) error {
	id, ok := g.index[key]
	if !ok {
		return fmt.Errorf("set %q on %q: %w", name, key, common.ErrUnknownEntity)
	}
	if err := g.schema.Check(name, v); err != nil {
		return err
	}
	g.nodes[id].props[name] = v
	return nil
}

// Properties returns a copy of every property of key.
func (g *Graph) Properties(key string) map[string]Value {
	id, ok := g.index[key]
	if !ok {
		return nil
	}
	out := make(map[string]Value, len(g.nodes[id].props))
	for k, v := range g.nodes[id].props {
		out[k] = v
	}
	return out
}

// PropertyNames returns the sorted union of property names over all nodes.
func (g *Graph) PropertyNames() []string {
	seen := make(map[string]struct{})
	for _, n := range g.nodes {
		for k := range n.props {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NodeIDs returns live handles in insertion order.
func (g *Graph) NodeIDs() []NodeID {
	out := make([]NodeID, 0, len(g.nodes))
	for _, id := range g.order {
		if _, ok := g.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Nodes returns the keys of live nodes in insertion order.
func (g *Graph) Nodes() []string {
	ids := g.NodeIDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id].key
	}
	return out
}

// NeighborIDs returns the neighbours of id in ascending handle order.
func (g *Graph) NeighborIDs(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]NodeID, 0, len(n.adj))
	for nb := range n.adj {
		out = append(out, nb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Neighbors returns the keys adjacent to key.
func (g *Graph) Neighbors(key string) []string {
	id, ok := g.index[key]
	if !ok {
		return nil
	}
	ids := g.NeighborIDs(id)
	out := make([]string, len(ids))
	for i, nb := range ids {
		out[i] = g.nodes[nb].key
	}
	return out
}

// Edges returns every edge once, ordered by the insertion order of the lower
// endpoint and then of the upper endpoint.
func (g *Graph) Edges() [][2]string {
	out := make([][2]string, 0, g.numEdges)
	for _, id := range g.NodeIDs() {
		for _, nb := range g.NeighborIDs(id) {
			if nb > id {
				out = append(out, [2]string{g.nodes[id].key, g.nodes[nb].key})
			}
		}
	}
	return out
}

// Retain removes every node for which keep returns false, together with its
// incident edges. It returns the number of nodes removed.
func (g *Graph) Retain(keep func(id NodeID) bool) int {
	removed := 0
	for _, id := range g.NodeIDs() {
		if !keep(id) {
			g.removeID(id)
			removed++
		}
	}
	return removed
}
