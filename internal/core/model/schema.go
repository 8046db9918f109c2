package model

import "github.com/agenthands/snowball/internal/graph"

// AuthorSchema is the property schema of coauthor network nodes. Merged
// nodes hold lists where a single author holds text.
func AuthorSchema() graph.Schema {
	return graph.Schema{
		PropSID:         {graph.KindText, graph.KindTextList},
		PropSurname:     {graph.KindText},
		PropGiven:       {graph.KindText},
		PropDocs:        {graph.KindInteger},
		PropAreas:       {graph.KindTextList},
		PropAffiliation: {graph.KindText, graph.KindTextList},
		PropCountry:     {graph.KindText, graph.KindTextList},
	}
}
