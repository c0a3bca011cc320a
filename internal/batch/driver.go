package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/oracle"
	"github.com/dshills/tokensplit/internal/processor"
	"github.com/dshills/tokensplit/pkg/types"
)

// Common errors
var (
	ErrInvalidWorkers = errors.New("worker count must be positive")
	ErrCanceled       = errors.New("batch canceled")
)

// Config contains configuration for the driver
type Config struct {
	Workers int // Number of concurrent workers (default: runtime.NumCPU())
}

// Driver fans documents out to a processor.
type Driver struct {
	proc    *processor.Processor
	workers int
	log     logger.Logger
}

// Result holds everything produced by one Run.
type Result struct {
	Summary  *types.RunSummary
	Outcomes []processor.Outcome // indexed like the input documents
	Duration time.Duration
}

// New creates a driver. An oracle that is not safe for concurrent use is
// serialized so workers take turns calling it.
func New(o oracle.Oracle, opts processor.Options, cfg Config, log logger.Logger) (*Driver, error) {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Workers)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if o != nil && !o.ConcurrencySafe() {
		o = oracle.Serialize(o)
	}

	proc, err := processor.New(o, opts, log)
	if err != nil {
		return nil, err
	}
	return &Driver{proc: proc, workers: cfg.Workers, log: log}, nil
}

// Workers returns the pool size.
func (d *Driver) Workers() int {
	return d.workers
}

// Processor returns the processor shared by the workers.
func (d *Driver) Processor() *processor.Processor {
	return d.proc
}

// Run processes docs and returns one report per document. A run either
// completes for every document or fails with ErrCanceled when ctx ends first,
// including while the last documents are still in flight.
func (d *Driver) Run(ctx context.Context, docs []types.Document) (*Result, error) {
	startTime := time.Now()
	outcomes := make([]processor.Outcome, len(docs))

	// Track progress with atomic counters
	var (
		processed   atomic.Int32
		quarantined atomic.Int32
	)

	g := new(errgroup.Group)
	g.SetLimit(d.workers)

	for i := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := d.processOne(ctx, docs[i])
			if out.Err != nil {
				return nil
			}
			if out.Quarantined() {
				quarantined.Add(1)
			}
			processed.Add(1)
			outcomes[i] = out
			return nil
		})
	}

	// Workers never return errors
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w after %d of %d documents: %w",
			ErrCanceled, processed.Load(), len(docs), err)
	}

	res := &Result{
		Summary:  Aggregate("", outcomes),
		Outcomes: outcomes,
		Duration: time.Since(startTime),
	}
	res.Summary.StartedAt = startTime.UTC()
	res.Summary.FinishedAt = startTime.Add(res.Duration).UTC()

	d.log.Info("batch complete",
		"documents", humanize.Comma(int64(len(docs))),
		"records", humanize.Comma(int64(res.Summary.OutputRecords)),
		"quarantined", humanize.Comma(int64(quarantined.Load())),
		"split_failed", res.Summary.Counts[types.ClassSplitFailed],
		"workers", d.workers,
		"duration", res.Duration.Round(time.Millisecond))

	return res, nil
}

// processOne runs the processor and turns a panic into a quarantine-error.
func (d *Driver) processOne(ctx context.Context, doc types.Document) (out processor.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", processor.ErrProcessorPanic, r)
			out = processor.Failure(d.log.With("id", doc.ID), doc, types.Report{}, err)
		}
	}()
	return d.proc.Process(ctx, doc)
}

// Aggregate folds outcomes, in order, into a run summary.
func Aggregate(runID string, outcomes []processor.Outcome) *types.RunSummary {
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := types.NewRunSummary(runID)
	for i := range outcomes {
		out := &outcomes[i]
		summary.AddReport(out.Report)
		summary.OutputRecords += len(out.Records)
		for _, tokens := range out.RecordTokens {
			summary.OutputStats.Add(tokens)
		}
	}
	return summary
}
