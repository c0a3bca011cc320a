package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/dshills/tokensplit/internal/jsonl"
	"github.com/dshills/tokensplit/internal/storage"
	"github.com/dshills/tokensplit/pkg/types"
)

// ErrLineCount means the written files disagree with the run summary.
var ErrLineCount = errors.New("output line count mismatch")

// Ledger records runs. *storage.SQLiteStorage satisfies it.
type Ledger interface {
	CreateRun(ctx context.Context, run *storage.Run) error
	FinishRun(ctx context.Context, run *storage.Run) error
	SaveReports(ctx context.Context, runID string, reports []types.Report) error
}

// RunFile processes one JSONL input file and writes its chunk, quarantine
// and summary files. The quarantine file is only created when at least one
// document was quarantined. ledger may be nil.
func (d *Driver) RunFile(ctx context.Context, paths jsonl.Paths, ledger Ledger) (*types.RunSummary, error) {
	log := d.log.With("input", paths.Input)
	opts := d.proc.Options()

	run := &storage.Run{
		InputFile:      paths.Input,
		OutputFile:     paths.Output,
		QuarantineFile: paths.Quarantine,
		SummaryFile:    paths.Summary,
		Oracle:         d.proc.Oracle().Name(),
		Delimiter:      opts.Delimiter,
		TokenLimit:     opts.TokenLimit,
		WorkerCount:    d.workers,
	}
	if ledger != nil {
		if err := ledger.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	summary, err := d.runFile(ctx, paths, run.ID)
	if ledger == nil {
		return summary, err
	}

	// the run row is finished even when processing failed
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		run.Status = storage.RunFailed
		run.Error = err.Error()
		if ferr := ledger.FinishRun(finishCtx, run); ferr != nil {
			log.Error("failed to record run failure", "run_id", run.ID, "error", ferr)
		}
		return nil, err
	}

	if err := ledger.SaveReports(finishCtx, run.ID, summary.Reports); err != nil {
		return summary, fmt.Errorf("failed to record reports: %w", err)
	}
	run.Status = storage.RunCompleted
	run.ApplySummary(summary)
	run.FinishedAt = summary.FinishedAt
	if err := ledger.FinishRun(finishCtx, run); err != nil {
		return summary, fmt.Errorf("failed to record run: %w", err)
	}
	return summary, nil
}

func (d *Driver) runFile(ctx context.Context, paths jsonl.Paths, runID string) (*types.RunSummary, error) {
	log := d.log.With("input", paths.Input)

	var size uint64
	if info, err := os.Stat(paths.Input); err == nil {
		size = uint64(info.Size())
	}
	log.Info("reading input", "size", humanize.Bytes(size))

	read, err := jsonl.ReadFile(paths.Input, log)
	if err != nil {
		return nil, err
	}

	res, err := d.Run(ctx, read.Documents)
	if err != nil {
		return nil, err
	}

	summary := res.Summary
	if runID != "" {
		summary.RunID = runID
	}
	summary.InputFile = filepath.Base(paths.Input)
	summary.OutputFile = filepath.Base(paths.Output)
	summary.MalformedLines = read.Malformed

	written, err := writeLines(paths.Output, res.WriteRecords)
	if err != nil {
		return nil, err
	}
	if written != summary.OutputRecords {
		return nil, fmt.Errorf("%w: wrote %d records, summary counts %d", ErrLineCount, written, summary.OutputRecords)
	}
	if summary.QuarantinedDocuments > 0 {
		summary.QuarantineFile = filepath.Base(paths.Quarantine)
		written, err := writeLines(paths.Quarantine, res.WriteQuarantine)
		if err != nil {
			return nil, err
		}
		if written != summary.QuarantinedDocuments {
			return nil, fmt.Errorf("%w: wrote %d quarantine lines, summary counts %d", ErrLineCount, written, summary.QuarantinedDocuments)
		}
	}
	if err := jsonl.WriteSummary(paths.Summary, summary); err != nil {
		return nil, err
	}

	log.Info("file complete",
		"original_entries", humanize.Comma(int64(summary.InputDocuments)),
		"split_entries", humanize.Comma(int64(summary.OutputRecords)),
		"skipped_entries", humanize.Comma(int64(summary.SkippedDocuments)),
		"quarantined_entries", humanize.Comma(int64(summary.QuarantinedDocuments)),
		"malformed_lines", summary.MalformedLines)
	return summary, nil
}

// writeLines creates path, fills it with write and returns the line count.
func writeLines(path string, write func(*jsonl.Writer) error) (n int, err error) {
	w, err := jsonl.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := write(w.Writer); err != nil {
		return 0, err
	}
	return w.Lines(), nil
}

// WriteRecords writes every output record in input order.
func (r *Result) WriteRecords(w *jsonl.Writer) error {
	for i := range r.Outcomes {
		for _, rec := range r.Outcomes[i].Records {
			if err := w.WriteRecord(rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}
	return nil
}

// WriteQuarantine writes the original line of every quarantined document in
// input order.
func (r *Result) WriteQuarantine(w *jsonl.Writer) error {
	for i := range r.Outcomes {
		if !r.Outcomes[i].Quarantined() {
			continue
		}
		if err := w.WriteRaw(r.Outcomes[i].Quarantine); err != nil {
			return fmt.Errorf("write quarantine: %w", err)
		}
	}
	return nil
}
