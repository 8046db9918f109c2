// Package graphio encodes the coauthor graph: a JSON document that keeps
// every property exactly, a GraphML document for portable tools, and a CSV
// metadata table.
package graphio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/graph"
)

type Document struct {
	Nodes []NodeDoc   `json:"nodes"`
	Edges [][2]string `json:"edges"`
}

type NodeDoc struct {
	Key        string                 `json:"key"`
	Properties map[string]graph.Value `json:"properties"`
}

func ToDocument(g *graph.Graph) Document {
	doc := Document{Nodes: make([]NodeDoc, 0, g.NumNodes()), Edges: g.Edges()}
	for _, key := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, NodeDoc{Key: key, Properties: g.Properties(key)})
	}
	return doc
}

// FromDocument rebuilds a graph, validating properties against schema. An
// edge naming an undeclared node is rejected.
func FromDocument(doc Document, schema graph.Schema) (*graph.Graph, error) {
	g := graph.New(schema)
	for _, n := range doc.Nodes {
		if n.Key == "" {
			return nil, fmt.Errorf("node with empty key: %w", common.ErrMalformedInput)
		}
		g.AddNode(n.Key)
		for name, v := range n.Properties {
			if err := g.SetProperty(n.Key, name, v); err != nil {
				return nil, fmt.Errorf("node %q: %w: %v", n.Key, common.ErrMalformedInput, err)
			}
		}
	}
	for _, e := range doc.Edges {
		if !g.HasNode(e[0]) || !g.HasNode(e[1]) {
			return nil, fmt.Errorf("edge %v references an unknown node: %w", e, common.ErrMalformedInput)
		}
		g.AddEdge(e[0], e[1])
	}
	return g, nil
}

func EncodeJSON(w io.Writer, g *graph.Graph) error {
	return json.NewEncoder(w).Encode(ToDocument(g))
}

func DecodeJSON(r io.Reader, schema graph.Schema) (*graph.Graph, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w: %v", common.ErrMalformedInput, err)
	}
	return FromDocument(doc, schema)
}

func SaveJSON(path string, g *graph.Graph) error {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, g); err != nil {
		return err
	}
	return common.WriteFileAtomic(path, buf.Bytes())
}

func LoadJSON(path string, schema graph.Schema) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph '%s': %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return DecodeJSON(f, schema)
}
