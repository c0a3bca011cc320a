// Package types provides shared type definitions for tokensplit.
//
// This package defines the domain values passed between the partitioning engine,
// the document processor, the batch driver and the output writers: documents,
// segments, chunks, per-document reports and the run summary.
//
// # Core Types
//
// Document is one input JSONL record. Raw keeps the exact input line so that a
// quarantined document can be written back byte-for-byte:
//
//	doc := types.Document{
//	    ID:    "05-0001",
//	    Title: "main.mnm",
//	    Text:  "...;<h1/>...",
//	    Raw:   line,
//	}
//
// Segment is a trimmed, non-empty, delimiter-bounded slice of a document with its
// token weight. Chunk is a contiguous inclusive Range of segments plus the
// reconstructed token weight (segment weights plus one join cost per re-inserted
// delimiter):
//
//	chunk := types.Chunk{Range: types.Range{Start: 0, End: 1}, Tokens: 210}
//
// # Reports
//
// Every input document produces exactly one Report. Its Classification tells which
// terminal state the document processor reached:
//
//	ClassFitsAsIs          // whole document under the limit, emitted unchanged
//	ClassSplit             // emitted as N chunk records
//	ClassSegmentTooLarge   // one segment alone exceeds the limit, quarantined
//	ClassQuarantineError   // the cost oracle failed, quarantined
//	ClassSplitFailed       // internal consistency failure, nothing emitted
//	ClassPassedThrough     // over the limit but no delimiter, emitted unchanged
//
// RunSummary aggregates reports for one input file and is written once after every
// document has been processed.
//
// # Validation
//
// Values that cross a package boundary implement Validate:
//
//	if err := chunk.Validate(segmentCount); err != nil {
//	    return err
//	}
package types
