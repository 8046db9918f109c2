package core

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/dedupe"
	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/graph"
	"github.com/agenthands/snowball/internal/graphio"
	"github.com/agenthands/snowball/internal/workdir"
)

// FindDuplicates writes the candidate groups of the final graph to the
// review file and returns them.
func FindDuplicates(wc workdir.Context, logger *zap.Logger) ([]model.CandidateGroup, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g, err := loadFinal(wc)
	if err != nil {
		return nil, err
	}
	groups := dedupe.FindCandidates(g)

	var buf bytes.Buffer
	if err := dedupe.WriteCandidates(&buf, groups); err != nil {
		return nil, err
	}
	if err := common.WriteFileAtomic(wc.Path(workdir.CandidatesFile), buf.Bytes()); err != nil {
		return nil, err
	}
	logger.Info("identified recurrent surnames for manual review",
		zap.Int("groups", len(groups)),
		zap.String("file", wc.Path(workdir.CandidatesFile)))
	return groups, nil
}

// CollapseReport summarises one CollapseDuplicates call.
type CollapseReport struct {
	Groups int
	Merged []string
	Nodes  int
	Edges  int
}

// CollapseDuplicates applies the reviewed groups in dupesPath to the final
// graph, writing the collapsed graph and a rebuilt metadata table. Existing
// collapsed outputs are only replaced when force is set. Bad groups are
// reported in the returned error after the good ones have been applied and
// saved.
func CollapseDuplicates(wc workdir.Context, dupesPath string, force bool, d *dedupe.Deduplicator) (CollapseReport, error) {
	var report CollapseReport
	if d == nil {
		d = dedupe.NewDeduplicator(nil)
	}
	if dupesPath == "" {
		dupesPath = wc.Path(workdir.DupesFile)
	}
	out := wc.NetPath("collapsed", "json")
	if !force && common.Exists(out) {
		return report, fmt.Errorf("collapsed graph %s: %w", out, common.ErrAlreadyExists)
	}

	g, err := loadFinal(wc)
	if err != nil {
		return report, err
	}

	f, err := os.Open(dupesPath)
	if err != nil {
		return report, fmt.Errorf("failed to open review file '%s': %w", dupesPath, err)
	}
	groups, err := dedupe.ReadGroups(f)
	_ = f.Close()
	if err != nil {
		return report, err
	}
	report.Groups = len(groups)

	merged, collapseErr := d.CollapseAll(g, groups)
	report.Merged = merged
	report.Nodes, report.Edges = g.NumNodes(), g.NumEdges()

	if err := graphio.SaveJSON(out, g); err != nil {
		return report, err
	}
	if err := graphio.SaveGraphML(wc.NetPath("collapsed", "graphml"), g); err != nil {
		return report, err
	}
	if err := graphio.SaveTable(wc.Path(workdir.MetadataTable), g); err != nil {
		return report, err
	}
	return report, collapseErr
}

func loadFinal(wc workdir.Context) (*graph.Graph, error) {
	path := wc.NetPath("", "json")
	if !common.Exists(path) {
		return nil, ErrNoGraph
	}
	return graphio.LoadJSON(path, model.AuthorSchema())
}
