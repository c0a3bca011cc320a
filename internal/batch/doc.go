// Package batch runs the document processor over many documents with a
// bounded worker pool and aggregates the outcomes into a run summary.
//
// Documents are processed independently; results are stored by input index
// and collected after every worker has finished, so outputs are written in
// input order by a single writer. A failure or panic while processing one
// document becomes a quarantine-error report for that document and never
// aborts the run.
package batch
