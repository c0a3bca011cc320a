package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/dshills/tokensplit/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// timeLayout keeps a fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SchemaVersion returns the ledger's applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (*semver.Version, error) {
	return SchemaVersion(ctx, s.db)
}

// RollbackMigration reverts the most recent schema migration. Reopening the
// ledger applies it again.
func (s *SQLiteStorage) RollbackMigration(ctx context.Context) error {
	return RollbackMigration(ctx, s.db)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Run operations

func (s *SQLiteStorage) createRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	query := `
		INSERT INTO runs (id, input_file, output_file, quarantine_file, summary_file,
		                  oracle, delimiter, token_limit, worker_count, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		run.ID, run.InputFile, run.OutputFile, run.QuarantineFile, run.SummaryFile,
		run.Oracle, run.Delimiter, run.TokenLimit, run.WorkerCount, run.Status,
		run.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		if exists, _ := s.runExists(ctx, q, run.ID); exists {
			return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) runExists(ctx context.Context, q querier, runID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&n)
	return n > 0, err
}

// CreateRun inserts a run, assigning an ID and start time when unset.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	return s.createRunWithQuerier(ctx, s.querier(), run)
}

func (s *SQLiteStorage) finishRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.Status == "" || run.Status == RunRunning {
		run.Status = RunCompleted
	}

	query := `
		UPDATE runs
		SET output_file = ?, quarantine_file = ?, summary_file = ?, status = ?, error = ?,
		    input_documents = ?, output_records = ?, quarantined_documents = ?,
		    malformed_lines = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		run.OutputFile, run.QuarantineFile, run.SummaryFile, run.Status, nullString(run.Error),
		run.InputDocuments, run.OutputRecords, run.QuarantinedDocuments,
		run.MalformedLines, run.FinishedAt.UTC().Format(timeLayout), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishRun stores the final status and totals of a run.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *Run) error {
	return s.finishRunWithQuerier(ctx, s.querier(), run)
}

const runColumns = `
	id, input_file, output_file, quarantine_file, summary_file, oracle, delimiter,
	token_limit, worker_count, status, error, input_documents, output_records,
	quarantined_documents, malformed_lines, started_at, finished_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var outputFile, quarantineFile, summaryFile, oracle, runErr, finishedAt sql.NullString
	var startedAt string

	err := row.Scan(
		&run.ID, &run.InputFile, &outputFile, &quarantineFile, &summaryFile, &oracle,
		&run.Delimiter, &run.TokenLimit, &run.WorkerCount, &run.Status, &runErr,
		&run.InputDocuments, &run.OutputRecords, &run.QuarantinedDocuments,
		&run.MalformedLines, &startedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.OutputFile = outputFile.String
	run.QuarantineFile = quarantineFile.String
	run.SummaryFile = summaryFile.String
	run.Oracle = oracle.String
	run.Error = runErr.String

	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		if run.FinishedAt, err = time.Parse(timeLayout, finishedAt.String); err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finishedAt.String, err)
		}
	}
	return &run, nil
}

func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, runID string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	return scanRun(q.QueryRowContext(ctx, query, runID))
}

// GetRun returns the run with the given ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	return s.getRunWithQuerier(ctx, s.querier(), runID)
}

func (s *SQLiteStorage) listRunsWithQuerier(ctx context.Context, q querier, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return s.listRunsWithQuerier(ctx, s.querier(), limit)
}

// LatestRun returns the most recently started run.
func (s *SQLiteStorage) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// Report operations

func (s *SQLiteStorage) saveReportsWithQuerier(ctx context.Context, q querier, runID string, reports []types.Report) error {
	query := `
		INSERT INTO reports (run_id, seq, doc_id, title, classification, original_tokens,
		                     chunk_count, chunk_tokens, max_chunk_tokens, max_segment_tokens, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			doc_id = excluded.doc_id,
			title = excluded.title,
			classification = excluded.classification,
			original_tokens = excluded.original_tokens,
			chunk_count = excluded.chunk_count,
			chunk_tokens = excluded.chunk_tokens,
			max_chunk_tokens = excluded.max_chunk_tokens,
			max_segment_tokens = excluded.max_segment_tokens,
			error = excluded.error
	`
	for i, r := range reports {
		chunkTokens, err := json.Marshal(r.ChunkTokens)
		if err != nil {
			return fmt.Errorf("failed to encode chunk tokens: %w", err)
		}
		_, err = q.ExecContext(ctx, query,
			runID, i, r.ID, r.Title, string(r.Classification), r.OriginalTokens,
			r.ChunkCount, string(chunkTokens), r.MaxChunkTokens, r.MaxSegmentTokens,
			nullString(r.Error))
		if err != nil {
			return fmt.Errorf("failed to save report %d: %w", i, err)
		}
	}
	return nil
}

// SaveReports stores reports in input order within one transaction.
func (s *SQLiteStorage) SaveReports(ctx context.Context, runID string, reports []types.Report) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SaveReports(ctx, runID, reports); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) listReportsWithQuerier(ctx context.Context, q querier, runID string, class types.Classification) ([]types.Report, error) {
	query := `
		SELECT doc_id, title, classification, original_tokens, chunk_count, chunk_tokens,
		       max_chunk_tokens, max_segment_tokens, error
		FROM reports
		WHERE run_id = ? AND (? = '' OR classification = ?)
		ORDER BY seq
	`
	rows, err := q.QueryContext(ctx, query, runID, string(class), string(class))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]types.Report, 0)
	for rows.Next() {
		var r types.Report
		var docID, title, chunkTokens, reportErr sql.NullString
		var classification string
		if err := rows.Scan(&docID, &title, &classification, &r.OriginalTokens, &r.ChunkCount,
			&chunkTokens, &r.MaxChunkTokens, &r.MaxSegmentTokens, &reportErr); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.ID = docID.String
		r.Title = title.String
		r.Classification = types.Classification(classification)
		r.Error = reportErr.String
		if chunkTokens.Valid && chunkTokens.String != "" && chunkTokens.String != "null" {
			if err := json.Unmarshal([]byte(chunkTokens.String), &r.ChunkTokens); err != nil {
				return nil, fmt.Errorf("invalid chunk tokens: %w", err)
			}
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ListReports returns the reports of a run in input order, optionally
// filtered by classification. An empty class returns every report.
func (s *SQLiteStorage) ListReports(ctx context.Context, runID string, class types.Classification) ([]types.Report, error) {
	return s.listReportsWithQuerier(ctx, s.querier(), runID, class)
}

func (s *SQLiteStorage) countReportsWithQuerier(ctx context.Context, q querier, runID string) (map[types.Classification]int, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT classification, COUNT(*) FROM reports WHERE run_id = ? GROUP BY classification", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Classification]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		counts[types.Classification(class)] = n
	}
	return counts, rows.Err()
}

// CountReports returns the number of reports per classification for a run.
func (s *SQLiteStorage) CountReports(ctx context.Context, runID string) (map[types.Classification]int, error) {
	return s.countReportsWithQuerier(ctx, s.querier(), runID)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

func (t *sqliteTx) CreateRun(ctx context.Context, run *Run) error {
	return t.storage.createRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) FinishRun(ctx context.Context, run *Run) error {
	return t.storage.finishRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) GetRun(ctx context.Context, runID string) (*Run, error) {
	return t.storage.getRunWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := t.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

func (t *sqliteTx) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return t.storage.listRunsWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) SaveReports(ctx context.Context, runID string, reports []types.Report) error {
	return t.storage.saveReportsWithQuerier(ctx, t.querier(), runID, reports)
}

func (t *sqliteTx) ListReports(ctx context.Context, runID string, class types.Classification) ([]types.Report, error) {
	return t.storage.listReportsWithQuerier(ctx, t.querier(), runID, class)
}

func (t *sqliteTx) CountReports(ctx context.Context, runID string) (map[types.Classification]int, error) {
	return t.storage.countReportsWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close storage from within transaction")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}
