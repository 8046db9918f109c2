// Package core sequences the crawl: two generations of coauthor retrieval,
// graph assembly with the hop-distance filter, metadata enrichment and the
// final graph exports. Every stage is resumable from on-disk state.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/batch"
	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/core/model"
	"github.com/agenthands/snowball/internal/core/network"
	"github.com/agenthands/snowball/internal/graph"
	"github.com/agenthands/snowball/internal/graphio"
	"github.com/agenthands/snowball/internal/stage"
	"github.com/agenthands/snowball/internal/workdir"
)

// ErrNoGraph is returned when the pipeline has not produced a final graph.
var ErrNoGraph = errors.New("final graph not produced yet")

// Fetchers are the remote collaborators of the crawl stages.
type Fetchers struct {
	Coauthors batch.Retriever[model.CoauthorPair]
	Metadata  batch.Retriever[model.AuthorMetadata]
}

type Options struct {
	// MaxDist is the hop distance from the seeds kept by graph assembly. Zero
	// is a valid setting that keeps only the seeds; DefaultOptions sets the
	// usual distance of one.
	MaxDist int
	Batch   batch.Options
	Logger  *zap.Logger
}

func DefaultOptions() Options {
	return Options{MaxDist: network.DefaultMaxDist}
}

// Result names the stage at which a run stopped. Complete is true once every
// stage has finished.
type Result struct {
	Stage    stage.Name
	Complete bool
}

type Pipeline struct {
	wc      workdir.Context
	fetch   Fetchers
	opts    Options
	builder *network.Builder
	log     *zap.Logger
}

func NewPipeline(wc workdir.Context, fetch Fetchers, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Batch.Logger == nil {
		opts.Batch.Logger = opts.Logger
	}
	return &Pipeline{
		wc:      wc,
		fetch:   fetch,
		opts:    opts,
		builder: network.NewBuilder(opts.MaxDist, opts.Logger),
		log:     opts.Logger,
	}
}

// Run resumes at the first unfinished stage and advances as far as the
// batch run limit allows. An unfinished batch ends the run without error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	tracker, err := stage.Load(p.wc.Path(workdir.StatusFile))
	if err != nil {
		return Result{}, err
	}

	steps := []struct {
		name stage.Name
		run  func(context.Context, *stage.Tracker) (bool, error)
	}{
		{stage.Gen1Crawl, p.gen1},
		{stage.Gen2Crawl, p.gen2},
		{stage.GraphAssembly, p.assemble},
		{stage.MetadataEnrichment, p.enrich},
		{stage.GraphFinalize, p.finalize},
	}

	for _, step := range steps {
		if tracker.Finished(step.name) {
			continue
		}
		log := p.log.With(zap.String("stage", string(step.name)))
		log.Info("entering stage")

		done, err := step.run(ctx, tracker)
		if err != nil {
			return Result{Stage: step.name}, fmt.Errorf("stage %s: %w", step.name, err)
		}
		if !done {
			log.Info("finished the current batch run; batch not finished, exiting")
			return Result{Stage: step.name}, nil
		}
		log.Info("finished stage")
	}

	p.log.Info("finished with all steps")
	return Result{Stage: stage.Order[len(stage.Order)-1], Complete: true}, nil
}

func (p *Pipeline) gen1(ctx context.Context, t *stage.Tracker) (bool, error) {
	return crawl(ctx, p, t, stage.Gen1Crawl, p.seeds, p.fetch.Coauthors, workdir.Gen1PairsFile)
}

func (p *Pipeline) gen2(ctx context.Context, t *stage.Tracker) (bool, error) {
	items := func() ([]string, error) {
		seeds, err := p.seeds()
		if err != nil {
			return nil, err
		}
		pairs, err := common.ReadJSONFile[[]model.CoauthorPair](p.wc.Path(workdir.Gen1PairsFile))
		if err != nil {
			return nil, err
		}
		return network.GenerationTwo(seeds, pairs), nil
	}
	return crawl(ctx, p, t, stage.Gen2Crawl, items, p.fetch.Coauthors, workdir.Gen2PairsFile)
}

func (p *Pipeline) assemble(_ context.Context, t *stage.Tracker) (bool, error) {
	if err := t.MarkStarted(stage.GraphAssembly); err != nil {
		return false, err
	}
	seeds, err := p.seeds()
	if err != nil {
		return false, err
	}
	gen1, err := common.ReadJSONFile[[]model.CoauthorPair](p.wc.Path(workdir.Gen1PairsFile))
	if err != nil {
		return false, err
	}
	gen2, err := common.ReadJSONFile[[]model.CoauthorPair](p.wc.Path(workdir.Gen2PairsFile))
	if err != nil {
		return false, err
	}

	g, err := p.builder.Build(gen1, gen2)
	if err != nil {
		return false, err
	}
	retained := p.builder.Prune(g, seeds)

	if err := common.WriteJSONFile(p.wc.Path(workdir.RetainedFile), retained); err != nil {
		return false, err
	}
	if err := graphio.SaveJSON(p.wc.NetPath("temp", "json"), g); err != nil {
		return false, err
	}
	if err := graphio.SaveGraphML(p.wc.NetPath("temp", "graphml"), g); err != nil {
		return false, err
	}
	return true, t.MarkFinished(stage.GraphAssembly)
}

func (p *Pipeline) enrich(ctx context.Context, t *stage.Tracker) (bool, error) {
	items := func() ([]string, error) {
		return common.ReadJSONFile[[]string](p.wc.Path(workdir.RetainedFile))
	}
	return crawl(ctx, p, t, stage.MetadataEnrichment, items, p.fetch.Metadata, workdir.MetadataFile)
}

func (p *Pipeline) finalize(_ context.Context, t *stage.Tracker) (bool, error) {
	if err := t.MarkStarted(stage.GraphFinalize); err != nil {
		return false, err
	}
	g, err := graphio.LoadJSON(p.wc.NetPath("temp", "json"), model.AuthorSchema())
	if err != nil {
		return false, err
	}
	metas, err := common.ReadJSONFile[[]model.AuthorMetadata](p.wc.Path(workdir.MetadataFile))
	if err != nil {
		return false, err
	}
	if _, _, err := p.builder.Enrich(g, metas); err != nil {
		return false, err
	}

	if err := graphio.SaveJSON(p.wc.NetPath("", "json"), g); err != nil {
		return false, err
	}
	if err := graphio.SaveGraphML(p.wc.NetPath("", "graphml"), g); err != nil {
		return false, err
	}
	if err := graphio.SaveTable(p.wc.Path(workdir.MetadataTable), g); err != nil {
		return false, err
	}
	return true, t.MarkFinished(stage.GraphFinalize)
}

// seeds reads the generation-1 identifiers.
func (p *Pipeline) seeds() ([]string, error) {
	return common.ReadJSONFile[[]string](p.wc.Path(workdir.SeedsFile))
}

// crawl drives one batch-backed stage: set the batch once, run it until the
// queue drains, then move the results to artifact.
func crawl[R any](
	ctx context.Context,
	p *Pipeline,
	t *stage.Tracker,
	name stage.Name,
	items func() ([]string, error),
	r batch.Retriever[R],
	artifact string,
) (bool, error) {
	log := p.log.With(zap.String("stage", string(name)))
	store := batch.NewStore[R](p.wc.WithStage(string(name)))
	artifactPath := p.wc.Path(artifact)

	if !t.Started(name) {
		if store.Exists() {
			log.Warn("reusing batch set before the stage was marked started")
		} else {
			list, err := items()
			if err != nil {
				return false, err
			}
			log.Info("setting batch", zap.Int("items", len(list)))
			if err := store.Set(list); err != nil {
				return false, err
			}
		}
		if err := t.MarkStarted(name); err != nil {
			return false, err
		}
	}

	if store.Exists() {
		if r == nil {
			return false, fmt.Errorf("no retriever configured for %s", name)
		}
		if _, err := batch.NewEngine(store, p.opts.Batch).Run(ctx, r); err != nil {
			return false, err
		}
		if store.Exists() {
			return false, nil
		}
	}

	if !store.HasResults() {
		if common.Exists(artifactPath) {
			log.Warn("stage output already written; marking finished")
			return true, t.MarkFinished(name)
		}
		return false, fmt.Errorf("no batch, results or output for %s: %w", name, common.ErrNoActiveBatch)
	}

	log.Info("finished the batch; moving data and cleaning up")
	results, err := store.Retrieve()
	if err != nil {
		return false, err
	}
	if err := common.WriteJSONFile(artifactPath, results); err != nil {
		return false, err
	}
	if err := store.Clean(); err != nil {
		return false, err
	}
	return true, t.MarkFinished(name)
}

// StatusReport is a read-only view of a working directory.
type StatusReport struct {
	Stages      map[stage.Name]stage.Status `json:"stages"`
	Next        stage.Name                  `json:"next,omitempty"`
	Complete    bool                        `json:"complete"`
	BatchActive bool                        `json:"batch_active"`
	Pending     int                         `json:"pending"`
}

// Inspect reports stage progress and the active batch without modifying
// anything on disk.
func Inspect(wc workdir.Context) (StatusReport, error) {
	tracker, err := stage.Load(wc.Path(workdir.StatusFile))
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Stages: tracker.Snapshot()}
	next, ok := tracker.Next()
	report.Next, report.Complete = next, !ok

	store := batch.NewStore[json.RawMessage](wc)
	if store.Exists() {
		pending, err := store.Pending()
		if err != nil {
			return StatusReport{}, err
		}
		report.BatchActive = true
		report.Pending = len(pending)
	}
	return report, nil
}

// LoadGraph returns the collapsed graph when one exists, otherwise the final
// graph. It fails when the pipeline has not produced a final graph yet.
func LoadGraph(wc workdir.Context) (*graph.Graph, error) {
	g, _, err := LoadLatestGraph(wc)
	return g, err
}

// LoadLatestGraph is LoadGraph that also reports whether the collapsed graph
// was the one loaded.
func LoadLatestGraph(wc workdir.Context) (*graph.Graph, bool, error) {
	for _, variant := range []string{"collapsed", ""} {
		path := wc.NetPath(variant, "json")
		if common.Exists(path) {
			g, err := graphio.LoadJSON(path, model.AuthorSchema())
			return g, variant != "", err
		}
	}
	return nil, false, ErrNoGraph
}
