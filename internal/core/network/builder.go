// Package network assembles the coauthor graph from crawled pairs, restricts
// it to the hop neighbourhood of the seed authors and writes author metadata
// onto its nodes.
package network

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/graph"
)

const DefaultMaxDist = 1

type Builder struct {
	MaxDist int
	Logger  *zap.Logger
}

// NewBuilder keeps nodes within maxDist hops of the seeds. Zero keeps the
// seeds only; a negative distance falls back to DefaultMaxDist.
func NewBuilder(maxDist int, logger *zap.Logger) *Builder {
	if maxDist < 0 {
		maxDist = DefaultMaxDist
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{MaxDist: maxDist, Logger: logger}
}

// Build adds a node per identifier and an edge per pair, in input order.
// Every node carries its identifier as the sid property.
func (b *Builder) Build(pairLists ...[]model.CoauthorPair) (*graph.Graph, error) {
	g := graph.New(model.AuthorSchema())
	total := 0
	for _, pairs := range pairLists {
		for _, p := range pairs {
			total++
			if p.Author() == "" || p.Coauthor() == "" {
				return nil, fmt.Errorf("pair %d has an empty identifier: %w", total, common.ErrMalformedInput)
			}
			for _, key := range []string{p.Author(), p.Coauthor()} {
				if !g.HasNode(key) {
					g.AddNode(key)
					if err := g.SetProperty(key, model.PropSID, graph.Text(key)); err != nil {
						return nil, err
					}
				}
			}
			g.AddEdge(p.Author(), p.Coauthor())
		}
	}
	b.Logger.Info("built network",
		zap.Int("pairs", total),
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()))
	return g, nil
}

// Reachable marks the seeds present in g and then, for maxDist rounds, every
// node adjacent to a marked node.
func Reachable(g *graph.Graph, seeds []string, maxDist int) map[graph.NodeID]bool {
	keep := make(map[graph.NodeID]bool)
	var frontier []graph.NodeID
	for _, s := range seeds {
		id, ok := g.Lookup(s)
		if !ok || keep[id] {
			continue
		}
		keep[id] = true
		frontier = append(frontier, id)
	}

	for round := 0; round < maxDist && len(frontier) > 0; round++ {
		var next []graph.NodeID
		for _, id := range frontier {
			for _, nb := range g.NeighborIDs(id) {
				if !keep[nb] {
					keep[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	return keep
}

// Prune drops every node farther than MaxDist hops from the seeds, along with
// its edges. It returns the retained keys in graph order.
func (b *Builder) Prune(g *graph.Graph, seeds []string) []string {
	keep := Reachable(g, seeds, b.MaxDist)
	removed := g.Retain(func(id graph.NodeID) bool { return keep[id] })
	b.Logger.Info("filtered network",
		zap.Int("max_dist", b.MaxDist),
		zap.Int("removed", removed),
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()))
	return g.Nodes()
}

// GenerationTwo returns the coauthors in pairs that are not seeds, in order of
// first appearance.
func GenerationTwo(seeds []string, pairs []model.CoauthorPair) []string {
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}
	var out []string
	for _, p := range pairs {
		c := p.Coauthor()
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// ApplyMetadata writes one author's metadata onto its node. It fails with
// ErrUnknownEntity when the author is not in the graph.
func ApplyMetadata(g *graph.Graph, m model.AuthorMetadata) error {
	if !g.HasNode(m.SID) {
		return fmt.Errorf("metadata for %q: %w", m.SID, common.ErrUnknownEntity)
	}
	areas := m.Areas
	if areas == nil {
		areas = []string{}
	}
	props := []struct {
		name  string
		value graph.Value
	}{
		{model.PropSurname, graph.Text(m.Surname)},
		{model.PropGiven, graph.Text(m.Given)},
		{model.PropDocs, graph.Integer(int64(m.Docs))},
		{model.PropAreas, graph.TextList(areas...)},
		{model.PropAffiliation, graph.Text(m.Affiliation)},
		{model.PropCountry, graph.Text(m.Country)},
	}
	for _, p := range props {
		if err := g.SetProperty(m.SID, p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// Enrich applies every metadata record, skipping records for identifiers the
// graph does not contain. Any other failure aborts.
func (b *Builder) Enrich(g *graph.Graph, metas []model.AuthorMetadata) (applied, skipped int, err error) {
	for _, m := range metas {
		err := ApplyMetadata(g, m)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, common.ErrUnknownEntity):
			skipped++
			b.Logger.Warn("skipping metadata for unknown author", zap.String("sid", m.SID))
		default:
			return applied, skipped, err
		}
	}
	b.Logger.Info("wrote author metadata", zap.Int("applied", applied), zap.Int("skipped", skipped))
	return applied, skipped, nil
}
