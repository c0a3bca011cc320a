package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/tokensplit/internal/batch"
	"github.com/dshills/tokensplit/internal/jsonl"
	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/processor"
	"github.com/dshills/tokensplit/internal/storage"
	"github.com/dshills/tokensplit/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeFileNotFound  = -32001 // Input file does not exist or is not readable
	ErrorCodeNoLedger      = -32002 // No run ledger configured
	ErrorCodeRunNotFound   = -32003 // Run id not recorded
	ErrorCodeSplitBusy     = -32004 // Another split is writing the same output files
)

// handleSplitDocument handles the split_document tool invocation
func (s *Server) handleSplitDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or not a string",
		})
	}

	opts, err := s.processorOptions(args)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	proc, err := processor.New(s.oracle, opts, log)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid split options", map[string]interface{}{
			"error": err.Error(),
		})
	}

	doc := types.Document{
		ID:    getStringDefault(args, "id", ""),
		Title: getStringDefault(args, "title", ""),
		Text:  text,
	}
	out := proc.Process(ctx, doc)
	if out.Err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "split interrupted", map[string]interface{}{
			"error": out.Err.Error(),
		})
	}
	log.Debug("document processed", "id", doc.ID, "classification", out.Report.Classification)

	records := make([]map[string]interface{}, len(out.Records))
	for i, r := range out.Records {
		records[i] = map[string]interface{}{
			"id":     r.ID,
			"title":  r.Title,
			"text":   r.Text,
			"tokens": out.RecordTokens[i],
		}
	}

	response := map[string]interface{}{
		"report":      out.Report,
		"records":     records,
		"quarantined": out.Quarantined(),
		"oracle":      s.oracle.Name(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSplitFile handles the split_file tool invocation
func (s *Server) handleSplitFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validateFilePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodeFileNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts, err := s.processorOptions(args)
	if err != nil {
		return nil, err
	}

	workers := getIntDefault(args, "workers", s.cfg.WorkerCount)
	if workers < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be at least 1", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}

	log := logger.FromContext(ctx).With("input", path)
	driver, err := batch.New(s.oracle, opts, batch.Config{Workers: workers}, log)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid split options", map[string]interface{}{
			"error": err.Error(),
		})
	}

	paths := jsonl.PathsFor(path,
		getStringDefault(args, "output_dir", s.cfg.OutputDir),
		getStringDefault(args, "quarantine_dir", s.cfg.QuarantineDir),
		getStringDefault(args, "summary_dir", s.cfg.SummaryDir),
	)

	if !s.outputs.TryAcquire(paths.Output, paths.Quarantine, paths.Summary) {
		return nil, newMCPError(ErrorCodeSplitBusy, "split already in progress for these output files", map[string]interface{}{
			"output_file": paths.Output,
		})
	}
	defer s.outputs.Release(paths.Output, paths.Quarantine, paths.Summary)

	var ledger batch.Ledger
	if s.storage != nil {
		ledger = s.storage
	}

	summary, err := driver.RunFile(ctx, paths, ledger)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "split failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":                  summary.RunID,
		"input_file":              paths.Input,
		"output_file":             paths.Output,
		"summary_file":            paths.Summary,
		"num_original_entries":    summary.InputDocuments,
		"num_split_entries":       summary.OutputRecords,
		"num_skipped_entries":     summary.SkippedDocuments,
		"num_quarantined_entries": summary.QuarantinedDocuments,
		"num_malformed_lines":     summary.MalformedLines,
		"classification_counts":   summary.Counts,
		"output_token_stats":      summary.OutputStats,
		"duration_ms":             summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
		"recorded":                ledger != nil,
	}
	if summary.QuarantinedDocuments > 0 {
		response["quarantine_file"] = paths.Quarantine
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetRunReport handles the get_run_report tool invocation
func (s *Server) handleGetRunReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		// all parameters are optional
		args = map[string]interface{}{}
	}

	if s.storage == nil {
		return nil, newMCPError(ErrorCodeNoLedger, "no run ledger configured", map[string]interface{}{
			"hint": "set db_path (TOKENSPLIT_DB_PATH) to record runs",
		})
	}

	class := types.Classification(getStringDefault(args, "classification", ""))
	if class != "" {
		if err := class.Validate(); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid classification", map[string]interface{}{
				"param": "classification",
				"value": string(class),
			})
		}
	}

	limit := getIntDefault(args, "limit", 100)
	if limit < 1 || limit > 1000 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var (
		run *storage.Run
		err error
	)
	if runID := getStringDefault(args, "run_id", ""); runID != "" {
		run, err = s.storage.GetRun(ctx, runID)
	} else {
		run, err = s.storage.LatestRun(ctx)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeRunNotFound, "run not found", map[string]interface{}{
			"run_id": getStringDefault(args, "run_id", ""),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get run", map[string]interface{}{
			"error": err.Error(),
		})
	}

	counts, err := s.storage.CountReports(ctx, run.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count reports", map[string]interface{}{
			"error": err.Error(),
		})
	}

	reports, err := s.storage.ListReports(ctx, run.ID, class)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list reports", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":                  run.ID,
		"status":                  run.Status,
		"input_file":              run.InputFile,
		"oracle":                  run.Oracle,
		"token_limit":             run.TokenLimit,
		"delimiter":               run.Delimiter,
		"num_original_entries":    run.InputDocuments,
		"num_split_entries":       run.OutputRecords,
		"num_skipped_entries":     counts[types.ClassSegmentTooLarge],
		"num_quarantined_entries": run.QuarantinedDocuments,
		"num_malformed_lines":     run.MalformedLines,
		"classification_counts":   counts,
		"started_at":              run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		response["finished_at"] = run.FinishedAt
	}
	if run.Error != "" {
		response["error"] = run.Error
	}
	if getBoolDefault(args, "include_reports", true) {
		if len(reports) > limit {
			response["report_count"] = len(reports)
			reports = reports[:limit]
		}
		response["reports"] = reports
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// processorOptions applies per-call overrides to the configured options.
func (s *Server) processorOptions(args map[string]interface{}) (processor.Options, error) {
	opts := s.cfg.ProcessorOptions()

	opts.TokenLimit = getIntDefault(args, "token_limit", opts.TokenLimit)
	if opts.TokenLimit < 1 {
		return opts, newMCPError(ErrorCodeInvalidParams, "token_limit must be at least 1", map[string]interface{}{
			"param": "token_limit",
			"value": opts.TokenLimit,
		})
	}

	opts.Delimiter = getStringDefault(args, "delimiter", opts.Delimiter)
	if opts.Delimiter == "" {
		return opts, newMCPError(ErrorCodeInvalidParams, "delimiter cannot be empty", map[string]interface{}{
			"param": "delimiter",
		})
	}

	policy := processor.UndelimitedPolicy(getStringDefault(args, "undelimited_policy", string(opts.Undelimited)))
	if policy != processor.PolicyPassThrough && policy != processor.PolicyQuarantine {
		return opts, newMCPError(ErrorCodeInvalidParams, "invalid undelimited_policy", map[string]interface{}{
			"param":   "undelimited_policy",
			"value":   string(policy),
			"allowed": []string{string(processor.PolicyPassThrough), string(processor.PolicyQuarantine)},
		})
	}
	opts.Undelimited = policy

	return opts, nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateFilePath checks that path names a readable regular file
func validateFilePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if info.IsDir() {
		return ErrIsDirectory
	}

	// Check if file is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory, not a file")
)
