package batch

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/core/common"
	"github.com/agenthands/snowball/internal/metrics"
)

const (
	DefaultRunLimit   = 1000
	DefaultFlushEvery = 1000
	DefaultLogEvery   = 100
)

// Retriever fetches the records for one work item. An empty result means the
// remote side has no data for the item.
type Retriever[R any] interface {
	Fetch(ctx context.Context, id string) ([]R, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc[R any] func(ctx context.Context, id string) ([]R, error)

func (f RetrieverFunc[R]) Fetch(ctx context.Context, id string) ([]R, error) {
	return f(ctx, id)
}

// RetrievalError wraps a failure returned by a Retriever.
type RetrievalError struct {
	Item string
	Err  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %q: %v", e.Item, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

type Options struct {
	// RunLimit caps the number of items one Run processes.
	RunLimit int
	// FlushEvery is the number of processed items between checkpoint flushes.
	FlushEvery int
	// LogEvery is the number of processed items between progress lines.
	LogEvery int

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.RunLimit <= 0 {
		o.RunLimit = DefaultRunLimit
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = DefaultFlushEvery
	}
	if o.LogEvery <= 0 {
		o.LogEvery = DefaultLogEvery
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Report summarises one Run.
type Report struct {
	Attempted int
	Processed int
	Retrieved int
	Skipped   int
	Remaining int
	Done      bool
}

type Engine[R any] struct {
	store *Store[R]
	opts  Options
	stage string
}

func NewEngine[R any](store *Store[R], opts Options) *Engine[R] {
	stage := store.wc.Stage
	if stage == "" {
		stage = "unknown"
	}
	return &Engine[R]{store: store, opts: opts.withDefaults(), stage: stage}
}

// Run processes up to RunLimit pending items in order. Progress is committed
// every FlushEvery items and on every exit path, including retrieval errors
// and context cancellation, so a restart resumes from the last commit.
func (e *Engine[R]) Run(ctx context.Context, r Retriever[R]) (report Report, err error) {
	log := e.opts.Logger.With(zap.String("stage", e.stage))

	pending, err := e.store.Pending()
	if err != nil {
		return report, err
	}
	if err := common.CheckWritable(e.store.wc.BatchDir()); err != nil {
		return report, err
	}
	results, err := e.store.Results()
	if err != nil {
		return report, err
	}
	if err := e.store.backup(results); err != nil {
		return report, fmt.Errorf("failed to back up results: %w", err)
	}

	thisRun := pending
	if len(thisRun) > e.opts.RunLimit {
		thisRun = thisRun[:e.opts.RunLimit]
	}
	report.Attempted = len(thisRun)
	log.Info("starting batch run", zap.Int("pending", len(pending)), zap.Int("this_run", len(thisRun)))

	tx := &checkpoint[R]{store: e.store, pending: pending, results: results}
	defer func() {
		if cerr := tx.commit(); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				err = multierror.Append(err, cerr)
			}
		} else {
			metrics.CheckpointFlushes.WithLabelValues(e.stage).Inc()
		}
		report.Remaining = len(tx.pending)
		report.Done = report.Remaining == 0
		log.Info("saved retrieved data", zap.Int("processed", report.Processed), zap.Int("remaining", report.Remaining))
	}()

	for _, item := range thisRun {
		if cerr := ctx.Err(); cerr != nil {
			return report, cerr
		}

		if item == "" {
			log.Debug("skipped empty item")
			tx.record(nil)
			report.Skipped++
			metrics.ItemsSkipped.WithLabelValues(e.stage).Inc()
		} else {
			recs, ferr := r.Fetch(ctx, item)
			if ferr != nil {
				metrics.RetrievalFailures.WithLabelValues(e.stage).Inc()
				log.Error("retrieval failed", zap.String("item", item), zap.Error(ferr))
				return report, &RetrievalError{Item: item, Err: ferr}
			}
			tx.record(recs)
			report.Retrieved++
			metrics.ItemsRetrieved.WithLabelValues(e.stage).Inc()
		}
		report.Processed++

		if report.Processed%e.opts.LogEvery == 0 {
			log.Info("batch progress", zap.Int("processed", report.Processed))
		}
		if tx.processed >= e.opts.FlushEvery {
			if ferr := tx.commit(); ferr != nil {
				return report, ferr
			}
			metrics.CheckpointFlushes.WithLabelValues(e.stage).Inc()
			log.Info("saved retrieved data; continuing batch run", zap.Int("remaining", len(tx.pending)))
		}
	}

	log.Info("finished batch run", zap.Int("retrieved", report.Retrieved), zap.Int("skipped", report.Skipped))
	return report, nil
}

// checkpoint holds the uncommitted tail of a run. Processed items always form
// a prefix of pending.
type checkpoint[R any] struct {
	store *Store[R]

	pending []string
	results []R

	acc       []R
	processed int
}

func (c *checkpoint[R]) record(recs []R) {
	c.acc = append(c.acc, recs...)
	c.processed++
}

// commit writes results first and pending second. A failure between the two
// leaves already-recorded items pending, which re-fetches them on resume
// rather than losing them. Calling commit again after a partial failure does
// not duplicate records.
func (c *checkpoint[R]) commit() error {
	if len(c.acc) > 0 || !c.store.HasResults() {
		merged := make([]R, 0, len(c.results)+len(c.acc))
		merged = append(merged, c.results...)
		merged = append(merged, c.acc...)
		if err := c.store.saveResults(merged); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		c.results = merged
		c.acc = nil
	}

	remaining := c.pending[c.processed:]
	if err := c.store.savePending(remaining); err != nil {
		return fmt.Errorf("failed to save pending items: %w", err)
	}
	c.pending = remaining
	c.processed = 0
	return nil
}
