// Package processor turns one document into output records and a report.
//
// Each document walks a small state machine:
//
//	START -> FITS                       whole document within the limit
//	START -> SPLIT_CANDIDATE -> SPLIT_OK          partitioned into chunks
//	                         -> SEGMENT_TOO_LARGE  one segment alone is over the limit
//	                         -> SPLIT_FAILED       a built chunk is over the limit
//
// Documents over the limit with no usable segments follow the configured
// UndelimitedPolicy. Oracle failures produce a quarantine-error report. The
// processor never returns an error: every outcome is described by the report.
package processor
