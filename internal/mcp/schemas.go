package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// splitDocumentTool returns the tool definition for split_document
func splitDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "split_document",
		Description: "Split one document into token-bounded chunks on a delimiter",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document id, used to derive chunk ids ({id}_part{n})",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Document title, used to derive chunk titles ({title}_part{n})",
				},
				"token_limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum tokens per chunk (defaults to the configured limit)",
					"minimum":     1,
				},
				"delimiter": map[string]interface{}{
					"type":        "string",
					"description": "Segment delimiter (defaults to the configured delimiter)",
				},
				"undelimited_policy": map[string]interface{}{
					"type":        "string",
					"description": "What to do with an over-limit document that has no delimiter",
					"enum":        []string{"pass-through", "quarantine"},
				},
			},
			Required: []string{"text"},
		},
	}
}

// splitFileTool returns the tool definition for split_file
func splitFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "split_file",
		Description: "Split every document of a JSONL file and write chunk, quarantine and summary files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSONL file of {id, title, text} records",
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Directory for chunk records (defaults to the configured output_dir)",
				},
				"quarantine_dir": map[string]interface{}{
					"type":        "string",
					"description": "Directory for quarantined lines (defaults to the configured quarantine_dir)",
				},
				"summary_dir": map[string]interface{}{
					"type":        "string",
					"description": "Directory for the summary JSON (defaults to the configured summary_dir)",
				},
				"token_limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum tokens per chunk",
					"minimum":     1,
				},
				"delimiter": map[string]interface{}{
					"type":        "string",
					"description": "Segment delimiter",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Number of concurrent workers",
					"minimum":     1,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getRunReportTool returns the tool definition for get_run_report
func getRunReportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_run_report",
		Description: "Show a recorded run and its per-document reports",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run id (defaults to the most recent run)",
				},
				"classification": map[string]interface{}{
					"type":        "string",
					"description": "Only include reports with this classification",
					"enum": []string{
						"fits-as-is", "split", "passed-through-undelimited",
						"quarantined-segment-too-large", "quarantine-error", "split-failed",
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of reports to return (1-1000)",
					"default":     100,
					"minimum":     1,
					"maximum":     1000,
				},
				"include_reports": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, return only the run totals",
					"default":     true,
				},
			},
		},
	}
}
