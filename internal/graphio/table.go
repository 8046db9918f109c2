package graphio

import (
	"bytes"
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/graph"
)

var tableColumns = []string{
	model.PropSID, model.PropSurname, model.PropGiven, model.PropDocs,
	model.PropAffiliation, model.PropCountry, model.PropAreas,
}

// WriteTable writes one row per node with the metadata columns followed by a
// boolean column for every distinct research area, in sorted order.
func WriteTable(w io.Writer, g *graph.Graph) error {
	nodes := g.Nodes()
	areaSet := make(map[string]struct{})
	nodeAreas := make(map[string]map[string]bool, len(nodes))
	for _, key := range nodes {
		member := make(map[string]bool)
		if v, ok := g.Property(key, model.PropAreas); ok {
			for _, a := range v.Strings() {
				areaSet[a] = struct{}{}
				member[a] = true
			}
		}
		nodeAreas[key] = member
	}
	areas := make([]string, 0, len(areaSet))
	for a := range areaSet {
		areas = append(areas, a)
	}
	sort.Strings(areas)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string(nil), tableColumns...), areas...)); err != nil {
		return err
	}
	for _, key := range nodes {
		props := g.Properties(key)
		row := make([]string, 0, len(tableColumns)+len(areas))
		for _, col := range tableColumns {
			v, ok := props[col]
			switch {
			case ok:
				row = append(row, v.Flatten())
			case col == model.PropSID:
				row = append(row, key)
			default:
				row = append(row, "")
			}
		}
		for _, a := range areas {
			row = append(row, strconv.FormatBool(nodeAreas[key][a]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func SaveTable(path string, g *graph.Graph) error {
	var buf bytes.Buffer
	if err := WriteTable(&buf, g); err != nil {
		return err
	}
	return common.WriteFileAtomic(path, buf.Bytes())
}
