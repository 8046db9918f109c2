package driver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/graph"
)

const DefaultExportBatch = 500

// Exporter writes a coauthor graph as (:Author)-[:COAUTHOR]->(:Author).
// Nodes are merged on key so repeated exports update in place.
type Exporter struct {
	Driver    GraphDriver
	BatchSize int
	// Reset deletes every Author before writing.
	Reset  bool
	Logger *zap.Logger
}

type ExportReport struct {
	Authors int
	Edges   int
}

func NewExporter(d GraphDriver, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{Driver: d, BatchSize: DefaultExportBatch, Logger: logger}
}

func (e *Exporter) Export(ctx context.Context, g *graph.Graph) (ExportReport, error) {
	var report ExportReport
	size := e.BatchSize
	if size <= 0 {
		size = DefaultExportBatch
	}

	if err := e.Driver.BuildIndices(ctx); err != nil {
		return report, err
	}
	if e.Reset {
		if _, err := e.Driver.ExecuteQuery(ctx, ClearAuthorsQuery, nil); err != nil {
			return report, fmt.Errorf("failed to clear authors: %w", err)
		}
	}

	nodes := g.Nodes()
	for start := 0; start < len(nodes); start += size {
		end := min(start+size, len(nodes))
		rows := make([]map[string]interface{}, 0, end-start)
		for _, key := range nodes[start:end] {
			rows = append(rows, map[string]interface{}{
				"key":        key,
				"properties": boltProperties(g.Properties(key)),
			})
		}
		if _, err := e.Driver.ExecuteQuery(ctx, SaveAuthorsQuery, map[string]interface{}{"authors": rows}); err != nil {
			return report, fmt.Errorf("failed to save authors: %w", err)
		}
		report.Authors += len(rows)
	}

	edges := g.Edges()
	for start := 0; start < len(edges); start += size {
		end := min(start+size, len(edges))
		rows := make([]map[string]interface{}, 0, end-start)
		for _, edge := range edges[start:end] {
			rows = append(rows, map[string]interface{}{"source": edge[0], "target": edge[1]})
		}
		if _, err := e.Driver.ExecuteQuery(ctx, SaveCoauthorEdgesQuery, map[string]interface{}{"edges": rows}); err != nil {
			return report, fmt.Errorf("failed to save coauthor edges: %w", err)
		}
		report.Edges += len(rows)
	}

	e.Logger.Info("exported graph", zap.Int("authors", report.Authors), zap.Int("edges", report.Edges))
	return report, nil
}

// boltProperties maps each value to its native Bolt type: strings, int64 and
// string lists.
func boltProperties(props map[string]graph.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for name, v := range props {
		switch v.Kind() {
		case graph.KindInteger:
			n, _ := v.Integer()
			out[name] = n
		case graph.KindTextList:
			list, _ := v.TextList()
			out[name] = list
		default:
			s, _ := v.Text()
			out[name] = s
		}
	}
	return out
}
