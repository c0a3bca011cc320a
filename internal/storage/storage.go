package storage

import (
	"context"
	"time"

	"github.com/dshills/tokensplit/pkg/types"
)

// Storage defines the interface for recording runs and their reports
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Report operations
	SaveReports(ctx context.Context, runID string, reports []types.Report) error
	ListReports(ctx context.Context, runID string, class types.Classification) ([]types.Report, error)
	CountReports(ctx context.Context, runID string) (map[types.Classification]int, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Run status values
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one batch run over one input file
type Run struct {
	ID             string
	InputFile      string
	OutputFile     string
	QuarantineFile string
	SummaryFile    string

	Oracle      string
	Delimiter   string
	TokenLimit  int
	WorkerCount int

	Status string
	Error  string

	InputDocuments       int
	OutputRecords        int
	QuarantinedDocuments int
	MalformedLines       int

	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// ApplySummary copies the totals of a finished run summary onto the run.
func (r *Run) ApplySummary(s *types.RunSummary) {
	r.InputDocuments = s.InputDocuments
	r.OutputRecords = s.OutputRecords
	r.QuarantinedDocuments = s.QuarantinedDocuments
	r.MalformedLines = s.MalformedLines
}
