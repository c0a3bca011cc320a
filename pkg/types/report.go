package types

import (
	"fmt"
	"time"
)

// Classification tags the terminal state a document reached.
type Classification string

const (
	ClassFitsAsIs        Classification = "fits-as-is"
	ClassSplit           Classification = "split"
	ClassSegmentTooLarge Classification = "quarantined-segment-too-large"
	ClassQuarantineError Classification = "quarantine-error"
	ClassSplitFailed     Classification = "split-failed"
	ClassPassedThrough   Classification = "passed-through-undelimited"
)

// AllClassifications lists every tag in summary order.
var AllClassifications = []Classification{
	ClassFitsAsIs,
	ClassSplit,
	ClassPassedThrough,
	ClassSegmentTooLarge,
	ClassQuarantineError,
	ClassSplitFailed,
}

// Validate checks the tag is known.
func (c Classification) Validate() error {
	for _, known := range AllClassifications {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownClass, string(c))
}

// Quarantined reports whether documents with this tag go to the quarantine stream.
func (c Classification) Quarantined() bool {
	return c == ClassSegmentTooLarge || c == ClassQuarantineError
}

// Report is the per-document processing record.
type Report struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	OriginalTokens   int            `json:"original_token_count"`
	Classification   Classification `json:"classification"`
	ChunkCount       int            `json:"split_parts,omitempty"`
	ChunkTokens      []int          `json:"split_token_counts,omitempty"`
	MaxChunkTokens   int            `json:"max_chunk_token_count,omitempty"`
	MaxSegmentTokens int            `json:"max_segment_token_count,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Validate checks the report is internally consistent.
func (r *Report) Validate() error {
	if err := r.Classification.Validate(); err != nil {
		return err
	}
	if r.Classification == ClassSplit && (r.ChunkCount == 0 || len(r.ChunkTokens) != r.ChunkCount) {
		return ErrMissingChunks
	}
	if r.OriginalTokens < 0 || r.MaxSegmentTokens < 0 {
		return ErrNegativeValue
	}
	return nil
}

// SkippedEntry identifies a quarantined document in the run summary.
type SkippedEntry struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	OriginalTokens int    `json:"original_token_count"`
}

// TokenStats summarizes the token counts of emitted records.
type TokenStats struct {
	Count int     `json:"count"`
	Sum   int     `json:"sum"`
	Mean  float64 `json:"mean"`
	Min   int     `json:"min"`
	Max   int     `json:"max"`
}

// Add folds one token count into the statistics.
func (s *TokenStats) Add(tokens int) {
	if s.Count == 0 || tokens < s.Min {
		s.Min = tokens
	}
	if tokens > s.Max {
		s.Max = tokens
	}
	s.Count++
	s.Sum += tokens
	s.Mean = float64(s.Sum) / float64(s.Count)
}

// RunSummary aggregates the reports of one batch run over one input file.
type RunSummary struct {
	RunID          string `json:"run_id"`
	InputFile      string `json:"input_file"`
	OutputFile     string `json:"output_file"`
	QuarantineFile string `json:"quarantine_file"`

	InputDocuments       int `json:"num_original_entries"`
	OutputRecords        int `json:"num_split_entries"`
	// SkippedDocuments counts segment-too-large documents, the entries of Skipped.
	SkippedDocuments     int `json:"num_skipped_entries"`
	// QuarantinedDocuments counts every document written to quarantine,
	// including quarantine-error ones.
	QuarantinedDocuments int `json:"num_quarantined_entries"`
	MalformedLines       int `json:"num_malformed_lines"`

	Counts      map[Classification]int `json:"classification_counts"`
	Skipped     []SkippedEntry         `json:"skipped_entries_due_to_segment_exceeding_limit"`
	OutputStats TokenStats             `json:"output_token_stats"`
	Reports     []Report               `json:"split_entries"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRunSummary returns an empty summary with every classification counter present.
func NewRunSummary(runID string) *RunSummary {
	counts := make(map[Classification]int, len(AllClassifications))
	for _, c := range AllClassifications {
		counts[c] = 0
	}
	return &RunSummary{
		RunID:   runID,
		Counts:  counts,
		Skipped: make([]SkippedEntry, 0),
		Reports: make([]Report, 0),
	}
}

// AddReport records one document's report. Output record counts and token
// statistics are added separately by the caller that owns the records.
func (s *RunSummary) AddReport(r Report) {
	s.InputDocuments++
	s.Counts[r.Classification]++
	if r.Classification.Quarantined() {
		s.QuarantinedDocuments++
	}
	if r.Classification == ClassSegmentTooLarge {
		s.SkippedDocuments++
		s.Skipped = append(s.Skipped, SkippedEntry{
			ID:             r.ID,
			Title:          r.Title,
			OriginalTokens: r.OriginalTokens,
		})
	}
	s.Reports = append(s.Reports, r)
}
