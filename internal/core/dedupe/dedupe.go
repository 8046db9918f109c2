package dedupe

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/graph"
)

// Deduplicator merges reviewer-confirmed duplicate authors into single nodes.
// It remembers which keys were merged into which node, so a later group may
// name an identifier that an earlier group already absorbed.
type Deduplicator struct {
	UUIDGenerator func() string
	Logger        *zap.Logger

	aliases map[string]string
}

func NewDeduplicator(logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		UUIDGenerator: uuid.NewString,
		Logger:        logger,
		aliases:       make(map[string]string),
	}
}

// Collapse replaces the nodes of group with one new node and returns its key.
// Edges to nodes outside the group are moved to the new node; edges inside
// the group are dropped. The old nodes are removed only after rewiring.
func (d *Deduplicator) Collapse(g *graph.Graph, group model.DuplicateGroup) (string, error) {
	members, err := d.resolve(g, group.SIDs)
	if err != nil {
		return "", err
	}

	key := d.UUIDGenerator()
	if g.HasNode(key) {
		return "", fmt.Errorf("merged key %q: %w", key, common.ErrAlreadyExists)
	}

	inGroup := make(map[string]bool, len(members))
	for _, k := range members {
		inGroup[k] = true
	}

	var (
		docs        int64
		areas       orderedSet
		affiliation orderedSet
		country     orderedSet
		sids        orderedSet
		neighbors   orderedSet
	)
	for _, k := range members {
		props := g.Properties(k)
		if v, ok := props[model.PropDocs]; ok {
			n, _ := v.Integer()
			docs += n
		}
		if v, ok := props[model.PropAreas]; ok {
			areas.add(v.Strings()...)
		}
		if v, ok := props[model.PropAffiliation]; ok {
			affiliation.add(v.Strings()...)
		}
		if v, ok := props[model.PropCountry]; ok {
			country.add(v.Strings()...)
		}
		if v, ok := props[model.PropSID]; ok {
			sids.add(v.Strings()...)
		} else {
			sids.add(k)
		}
		for _, nb := range g.Neighbors(k) {
			if !inGroup[nb] {
				neighbors.add(nb)
			}
		}
	}

	g.AddNode(key)
	props := []struct {
		name  string
		value graph.Value
	}{
		{model.PropSurname, graph.Text(group.Surname)},
		{model.PropGiven, graph.Text(group.Given)},
		{model.PropDocs, graph.Integer(docs)},
		{model.PropAreas, graph.TextList(areas.items...)},
		{model.PropAffiliation, graph.TextList(affiliation.items...)},
		{model.PropCountry, graph.TextList(country.items...)},
		{model.PropSID, graph.TextList(sids.items...)},
	}
	for _, p := range props {
		if err := g.SetProperty(key, p.name, p.value); err != nil {
			_ = g.RemoveNode(key)
			return "", err
		}
	}

	for _, nb := range neighbors.items {
		g.AddEdge(key, nb)
	}
	for _, k := range members {
		if err := g.RemoveNode(k); err != nil {
			return "", err
		}
		d.aliases[k] = key
	}
	for _, s := range sids.items {
		d.aliases[s] = key
	}

	d.Logger.Info("collapsed duplicates",
		zap.Strings("sids", sids.items),
		zap.String("key", key),
		zap.Int("edges", len(neighbors.items)))
	return key, nil
}

// CollapseAll applies each group in order. A failing group is logged and
// skipped; the failures are returned together after every group was tried.
func (d *Deduplicator) CollapseAll(g *graph.Graph, groups []model.DuplicateGroup) ([]string, error) {
	var merged []string
	var result *multierror.Error
	for i, group := range groups {
		key, err := d.Collapse(g, group)
		if err != nil {
			d.Logger.Warn("skipping duplicate group", zap.Int("row", i+1), zap.Strings("sids", group.SIDs), zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("group %d: %w", i+1, err))
			continue
		}
		merged = append(merged, key)
	}
	return merged, result.ErrorOrNil()
}

// Resolve maps an identifier to the key of the node that currently holds it.
func (d *Deduplicator) Resolve(g *graph.Graph, sid string) (string, bool) {
	k := sid
	for i := 0; i <= len(d.aliases); i++ {
		if g.HasNode(k) {
			return k, true
		}
		next, ok := d.aliases[k]
		if !ok {
			break
		}
		k = next
	}
	return "", false
}

func (d *Deduplicator) resolve(g *graph.Graph, sids []string) ([]string, error) {
	var members orderedSet
	var errs *multierror.Error
	for _, sid := range sids {
		k, ok := d.Resolve(g, sid)
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("%q: %w", sid, common.ErrUnknownEntity))
			continue
		}
		members.add(k)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if len(members.items) < 2 {
		return nil, fmt.Errorf("group %v resolves to %d node(s), need at least 2: %w", sids, len(members.items), common.ErrMalformedInput)
	}
	return members.items, nil
}

// orderedSet keeps distinct non-empty strings in first-appearance order.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *orderedSet) add(values ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}
