package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/driver"
	"github.com/agenthands/snowball/internal/workdir"
)

// ExportGraph writes the latest graph through e. Exporting a collapsed graph
// always clears existing authors first, since merging on key would leave the
// pre-collapse members and their edges in the store.
func ExportGraph(ctx context.Context, wc workdir.Context, e *driver.Exporter) (driver.ExportReport, error) {
	g, collapsed, err := LoadLatestGraph(wc)
	if err != nil {
		return driver.ExportReport{}, err
	}
	if collapsed && !e.Reset {
		e.Logger.Info("exporting collapsed graph; clearing existing authors")
		e.Reset = true
	}
	e.Logger.Debug("exporting graph", zap.Bool("collapsed", collapsed), zap.Int("nodes", g.NumNodes()))
	return e.Export(ctx, g)
}
