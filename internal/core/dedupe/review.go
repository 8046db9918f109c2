package dedupe

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/model"
)

var candidateHeader = []string{"surname_ascii", "surname", "given", "sid", "affiliation", "country"}

// WriteCandidates writes one row per candidate for manual review.
func WriteCandidates(w io.Writer, groups []model.CandidateGroup) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(candidateHeader); err != nil {
		return err
	}
	for _, grp := range groups {
		for _, c := range grp.Members {
			if err := cw.Write([]string{c.SurnameASCII, c.Surname, c.Given, c.SID, c.Affiliation, c.Country}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadGroups reads reviewer-confirmed duplicates. The header must name
// "surname", "given" and at least two "sid N" columns; each row must list at
// least two identifiers.
func ReadGroups(r io.Reader) ([]model.DuplicateGroup, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w: %v", common.ErrMalformedInput, err)
	}

	surnameIdx, givenIdx := -1, -1
	type sidCol struct{ n, idx int }
	var sidCols []sidCol
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		switch {
		case name == "surname":
			surnameIdx = i
		case name == "given":
			givenIdx = i
		case strings.HasPrefix(name, "sid "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(name, "sid ")))
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, common.ErrMalformedInput)
			}
			sidCols = append(sidCols, sidCol{n: n, idx: i})
		}
	}
	if surnameIdx < 0 || givenIdx < 0 {
		return nil, fmt.Errorf("missing required column %q or %q: %w", "surname", "given", common.ErrMalformedInput)
	}
	if len(sidCols) < 2 {
		return nil, fmt.Errorf("need at least two sid columns, got %d: %w", len(sidCols), common.ErrMalformedInput)
	}
	sort.Slice(sidCols, func(i, j int) bool { return sidCols[i].n < sidCols[j].n })

	var groups []model.DuplicateGroup
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w: %v", row, common.ErrMalformedInput, err)
		}
		group := model.DuplicateGroup{
			Surname: field(rec, surnameIdx),
			Given:   field(rec, givenIdx),
		}
		for _, c := range sidCols {
			if sid := field(rec, c.idx); sid != "" {
				group.SIDs = append(group.SIDs, sid)
			}
		}
		if len(group.SIDs) < 2 {
			return nil, fmt.Errorf("row %d lists %d identifier(s), need at least 2: %w", row, len(group.SIDs), common.ErrMalformedInput)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func field(rec []string, idx int) string {
	if idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}
