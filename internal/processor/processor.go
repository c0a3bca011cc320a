package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/oracle"
	"github.com/dshills/tokensplit/internal/partition"
	"github.com/dshills/tokensplit/internal/segment"
	"github.com/dshills/tokensplit/pkg/types"
)

// Common errors
var (
	ErrInvalidLimit     = errors.New("token limit must be positive")
	ErrEmptyDelimiter   = errors.New("delimiter must not be empty")
	ErrUnknownPolicy    = errors.New("unknown undelimited policy")
	ErrOracleRequired   = errors.New("token oracle is required")
	ErrProcessorPanic   = errors.New("processor panicked")
	ErrSplitUnavailable = errors.New("split failed")
	ErrInterrupted      = errors.New("processing interrupted")
)

// UndelimitedPolicy decides what happens to an over-limit document that has
// no usable segments.
type UndelimitedPolicy string

const (
	// PolicyPassThrough emits the document unchanged, over the limit.
	PolicyPassThrough UndelimitedPolicy = "pass-through"
	// PolicyQuarantine routes the document to quarantine.
	PolicyQuarantine UndelimitedPolicy = "quarantine"
)

// Defaults
const (
	DefaultDelimiter  = ";<h1/>"
	DefaultTokenLimit = 15872
)

// Options configures a Processor.
type Options struct {
	Delimiter   string
	TokenLimit  int
	Undelimited UndelimitedPolicy
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Delimiter:   DefaultDelimiter,
		TokenLimit:  DefaultTokenLimit,
		Undelimited: PolicyPassThrough,
	}
}

// Validate checks the options before any document is processed.
func (o Options) Validate() error {
	if o.TokenLimit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, o.TokenLimit)
	}
	if o.Delimiter == "" {
		return ErrEmptyDelimiter
	}
	switch o.Undelimited {
	case PolicyPassThrough, PolicyQuarantine:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, string(o.Undelimited))
	}
	return nil
}

// Outcome is everything produced for one document.
type Outcome struct {
	Report types.Report

	// Records are the output records, in order. Empty when quarantined or
	// when the split failed.
	Records []types.Record
	// RecordTokens holds the token count of each output record.
	RecordTokens []int

	// Quarantine holds the original line when the document is quarantined.
	Quarantine []byte

	// Err is set when ctx ended before the document was classified. The
	// outcome then carries no classification, records or quarantine line.
	Err error
}

// Quarantined reports whether the document goes to the quarantine stream.
func (o *Outcome) Quarantined() bool {
	return o.Quarantine != nil
}

// Processor applies the partitioning state machine to documents. It is safe
// for concurrent use when its oracle is.
type Processor struct {
	oracle oracle.Oracle
	opts   Options
	log    logger.Logger
}

// New creates a processor. Invalid options are rejected here so a batch run
// fails before reading any input.
func New(o oracle.Oracle, opts Options, log logger.Logger) (*Processor, error) {
	if o == nil {
		return nil, ErrOracleRequired
	}
	if opts.Undelimited == "" {
		opts.Undelimited = PolicyPassThrough
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{oracle: o, opts: opts, log: log}, nil
}

// Options returns the processor's options.
func (p *Processor) Options() Options {
	return p.opts
}

// Oracle returns the token oracle used by the processor.
func (p *Processor) Oracle() oracle.Oracle {
	return p.oracle
}

// Process runs one document through the state machine.
func (p *Processor) Process(ctx context.Context, doc types.Document) Outcome {
	log := p.log.With("id", doc.ID)
	report := types.Report{ID: doc.ID, Title: doc.Title}

	// START
	total, err := oracle.CountOne(ctx, p.oracle, doc.Text)
	if err != nil {
		return p.oracleFailure(ctx, log, doc, report, err)
	}
	report.OriginalTokens = total

	if total <= p.opts.TokenLimit {
		report.Classification = types.ClassFitsAsIs
		log.Debug("document fits", "tokens", total)
		return Outcome{
			Report:       report,
			Records:      []types.Record{doc.Record()},
			RecordTokens: []int{total},
		}
	}

	// SPLIT_CANDIDATE
	segments := segment.Split(doc.Text, p.opts.Delimiter)
	if len(segments) == 0 {
		return p.undelimited(log, doc, report)
	}

	counts, err := oracle.CountBatch(ctx, p.oracle, segment.Texts(segments))
	if err != nil {
		return p.oracleFailure(ctx, log, doc, report, err)
	}
	for i := range segments {
		segments[i].Tokens = counts[i]
		if err := segments[i].Validate(); err != nil {
			return p.splitFailed(log, report, fmt.Errorf("segment %d: %w", i, err))
		}
	}
	weights := segment.Weights(segments)

	report.MaxSegmentTokens = slices.Max(weights)
	if report.MaxSegmentTokens > p.opts.TokenLimit {
		report.Classification = types.ClassSegmentTooLarge
		log.Warn("segment exceeds limit, quarantining",
			"max_segment_tokens", report.MaxSegmentTokens,
			"limit", p.opts.TokenLimit)
		return Outcome{Report: report, Quarantine: quarantineLine(doc)}
	}

	joinCost, err := oracle.CountOne(ctx, p.oracle, p.opts.Delimiter)
	if err != nil {
		return p.oracleFailure(ctx, log, doc, report, err)
	}

	plan, err := partition.Plan(weights, joinCost, p.opts.TokenLimit)
	report.ChunkCount = len(plan.Chunks)
	report.ChunkTokens = types.ChunkTokens(plan.Chunks)
	report.MaxChunkTokens = types.MaxTokens(plan.Chunks)
	if err != nil {
		return p.splitFailed(log, report, err)
	}

	// SPLIT_OK
	report.Classification = types.ClassSplit
	if err := report.Validate(); err != nil {
		return p.splitFailed(log, report, err)
	}
	records := make([]types.Record, len(plan.Chunks))
	for i, c := range plan.Chunks {
		records[i] = doc.PartRecord(i+1, segment.Join(segments, c.Range, p.opts.Delimiter))
	}
	log.Debug("document split",
		"tokens", total,
		"segments", len(segments),
		"chunks", len(records),
		"capacity", plan.Capacity)

	return Outcome{
		Report:       report,
		Records:      records,
		RecordTokens: report.ChunkTokens,
	}
}

func (p *Processor) undelimited(log logger.Logger, doc types.Document, report types.Report) Outcome {
	if p.opts.Undelimited == PolicyQuarantine {
		report.Classification = types.ClassSegmentTooLarge
		report.MaxSegmentTokens = report.OriginalTokens
		log.Warn("no delimiter in over-limit document, quarantining",
			"tokens", report.OriginalTokens)
		return Outcome{Report: report, Quarantine: quarantineLine(doc)}
	}

	report.Classification = types.ClassPassedThrough
	log.Warn("no delimiter in over-limit document, passing through",
		"tokens", report.OriginalTokens,
		"limit", p.opts.TokenLimit)
	return Outcome{
		Report:       report,
		Records:      []types.Record{doc.Record()},
		RecordTokens: []int{report.OriginalTokens},
	}
}

// splitFailed builds the SPLIT_FAILED outcome: reported, nothing emitted.
func (p *Processor) splitFailed(log logger.Logger, report types.Report, err error) Outcome {
	report.Classification = types.ClassSplitFailed
	report.Error = fmt.Sprintf("%v: %v", ErrSplitUnavailable, err)
	log.Error("split failed",
		"chunk_tokens", report.ChunkTokens,
		"limit", p.opts.TokenLimit,
		"error", err)
	return Outcome{Report: report}
}

// oracleFailure quarantines the document unless the error comes from ctx
// ending, in which case the document is left unclassified.
func (p *Processor) oracleFailure(ctx context.Context, log logger.Logger, doc types.Document, report types.Report, err error) Outcome {
	if ctx.Err() != nil {
		log.Debug("document interrupted", "error", err)
		return Outcome{Report: report, Err: fmt.Errorf("%w: %w", ErrInterrupted, err)}
	}
	return Failure(log, doc, report, err)
}

// Failure builds the quarantine-error outcome for a document whose
// processing could not complete.
func Failure(log logger.Logger, doc types.Document, report types.Report, err error) Outcome {
	report.ID, report.Title = doc.ID, doc.Title
	report.Classification = types.ClassQuarantineError
	report.ChunkCount = 0
	report.ChunkTokens = nil
	report.MaxChunkTokens = 0
	report.Error = err.Error()
	log.Warn("document quarantined after error", "error", err)
	return Outcome{Report: report, Quarantine: quarantineLine(doc)}
}

// quarantineLine returns the exact input line, or a freshly encoded record for
// documents that did not come from a stream.
func quarantineLine(doc types.Document) []byte {
	if doc.Raw != nil {
		return slices.Clone(doc.Raw)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(types.Record{ID: doc.ID, Title: doc.Title, Text: doc.Text}); err != nil {
		return []byte{}
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
