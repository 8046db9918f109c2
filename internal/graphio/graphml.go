package graphio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/graph"
)

const graphmlNS = "http://graphml.graphdrawing.org/xmlns"

type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// EncodeGraphML writes g as undirected GraphML. Properties that hold only
// integers are declared long; everything else is a string, with lists joined
// by graph.ListSeparator.
func EncodeGraphML(w io.Writer, g *graph.Graph) error {
	names := g.PropertyNames()
	keyID := make(map[string]string, len(names))
	doc := graphmlDoc{
		XMLNS: graphmlNS,
		Graph: graphmlGraph{ID: "G", EdgeDefault: "undirected"},
	}
	for i, name := range names {
		id := fmt.Sprintf("key%d", i)
		keyID[name] = id
		doc.Keys = append(doc.Keys, graphmlKey{ID: id, For: "node", AttrName: name, AttrType: attrType(g, name)})
	}

	for _, key := range g.Nodes() {
		props := g.Properties(key)
		n := graphmlNode{ID: key}
		for _, name := range names {
			if v, ok := props[name]; ok {
				n.Data = append(n.Data, graphmlData{Key: keyID[name], Value: v.Flatten()})
			}
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, n)
	}
	for i, e := range g.Edges() {
		doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{ID: fmt.Sprintf("e%d", i), Source: e[0], Target: e[1]})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func attrType(g *graph.Graph, name string) string {
	seen := false
	for _, key := range g.Nodes() {
		v, ok := g.Property(key, name)
		if !ok {
			continue
		}
		seen = true
		if v.Kind() != graph.KindInteger {
			return "string"
		}
	}
	if !seen {
		return "string"
	}
	return "long"
}

func SaveGraphML(path string, g *graph.Graph) error {
	var buf bytes.Buffer
	if err := EncodeGraphML(&buf, g); err != nil {
		return err
	}
	return common.WriteFileAtomic(path, buf.Bytes())
}
