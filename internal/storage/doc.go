// Package storage provides the SQLite run ledger.
//
// Each batch run over an input file is recorded with its settings and totals,
// and every per-document report is stored alongside it so a run can be
// audited after its summary file is gone.
//
// # Database Schema
//
// Tables:
//   - runs: one row per input file processed (settings, totals, status)
//   - reports: one row per input document, keyed by run and input order
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	ledger, err := storage.NewSQLiteStorage("tokensplit.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ledger.Close()
//
//	run := &storage.Run{InputFile: "corpus.jsonl", TokenLimit: 15872}
//	if err := ledger.CreateRun(ctx, run); err != nil {
//	    return err
//	}
//	// ... process documents ...
//	_ = ledger.SaveReports(ctx, run.ID, summary.Reports)
//	run.Status = storage.RunCompleted
//	_ = ledger.FinishRun(ctx, run)
//
// # Drivers
//
// The default build uses modernc.org/sqlite (pure Go). Build with
// -tags sqlite_cgo to use github.com/mattn/go-sqlite3 instead.
package storage
