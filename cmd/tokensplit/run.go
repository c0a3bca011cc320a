package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/tokensplit/internal/batch"
	"github.com/dshills/tokensplit/internal/jsonl"
	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/oracle"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] <input>...",
		Short: "Split JSONL input files",
		Long: "Split every document of the given JSONL files so each output record fits the token limit.\n" +
			"Inputs may be doublestar globs such as data/**/*.jsonl.",
		Args: cobra.MinimumNArgs(1),
		RunE: runSplit,
	}

	cmd.Flags().Int("workers", 0, "Concurrent documents (default NumCPU)")
	cmd.Flags().String("output-dir", "", "Directory for chunk files")
	cmd.Flags().String("quarantine", "", "Directory for quarantined documents")
	cmd.Flags().String("summary-dir", "", "Directory for run summaries")
	return cmd
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := logger.FromContext(ctx)

	files, err := jsonl.Glob(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files match %v", args)
	}
	plans, err := jsonl.PlanPaths(files, cfg.OutputDir, cfg.QuarantineDir, cfg.SummaryDir)
	if err != nil {
		return err
	}

	o, err := oracle.New(cfg.OracleConfig())
	if err != nil {
		return fmt.Errorf("failed to create token oracle: %w", err)
	}
	defer func() { _ = o.Close() }()

	driver, err := batch.New(o, cfg.ProcessorOptions(), batch.Config{Workers: cfg.WorkerCount}, log)
	if err != nil {
		return err
	}

	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	var ledger batch.Ledger
	if store != nil {
		defer func() { _ = store.Close() }()
		ledger = store
	}

	log.Info("starting run",
		"files", len(files),
		"oracle", o.Name(),
		"limit", cfg.TokenLimit,
		"workers", driver.Workers(),
	)

	var errs []error
	for _, paths := range plans {
		summary, err := driver.RunFile(ctx, paths, ledger)
		if err != nil {
			log.Error("failed to split file", "input", paths.Input, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", paths.Input, err))
			if errors.Is(err, batch.ErrCanceled) {
				break
			}
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s documents, %s records, %s quarantined, %s malformed\n",
			paths.Input,
			humanize.Comma(int64(summary.InputDocuments)),
			humanize.Comma(int64(summary.OutputRecords)),
			humanize.Comma(int64(summary.QuarantinedDocuments)),
			humanize.Comma(int64(summary.MalformedLines)),
		)
	}

	if cached, ok := o.(*oracle.CachedOracle); ok {
		log.Debug("token cache", "entries", humanize.Comma(int64(cached.Size())))
	}
	return errors.Join(errs...)
}
