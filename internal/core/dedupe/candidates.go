package dedupe

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/graph"
)

// FoldASCII decomposes s and drops every non-ASCII rune, so "Müller" and
// "Muller" fold to the same string.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(out)
}

// FindCandidates groups nodes by folded surname and returns every group with
// at least two members, ordered by folded surname. Nothing is merged; the
// groups are for manual review.
func FindCandidates(g *graph.Graph) []model.CandidateGroup {
	groups := make(map[string][]model.Candidate)
	for _, key := range g.Nodes() {
		props := g.Properties(key)
		sv, ok := props[model.PropSurname]
		if !ok {
			continue
		}
		surname := sv.Flatten()
		folded := FoldASCII(surname)
		if folded == "" {
			continue
		}
		groups[folded] = append(groups[folded], model.Candidate{
			SurnameASCII: folded,
			Surname:      surname,
			Given:        flatten(props, model.PropGiven),
			SID:          key,
			Affiliation:  flatten(props, model.PropAffiliation),
			Country:      flatten(props, model.PropCountry),
		})
	}

	var out []model.CandidateGroup
	for folded, members := range groups {
		if len(members) < 2 {
			continue
		}
		out = append(out, model.CandidateGroup{SurnameASCII: folded, Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurnameASCII < out[j].SurnameASCII })
	return out
}

func flatten(props map[string]graph.Value, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	return v.Flatten()
}
