// Package mcp implements the Model Context Protocol (MCP) server for tokensplit.
//
// The MCP server exposes three tools to AI coding assistants:
//   - split_document: Split one document into token-bounded chunks
//   - split_file: Split a JSONL file and write chunk, quarantine and summary files
//   - get_run_report: Inspect a recorded run from the SQLite ledger
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr so stdout carries only protocol messages.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	tokensplit serve
//
// # Tool: split_document
//
//	Request:
//	{
//	  "name": "split_document",
//	  "arguments": {
//	    "id": "doc-1",
//	    "title": "Example",
//	    "text": "first;<h1/>second;<h1/>third",
//	    "token_limit": 2048
//	  }
//	}
//
//	Response:
//	{
//	  "report": {"id": "doc-1", "classification": "split", ...},
//	  "records": [{"id": "doc-1_part1", "title": "Example_part1", "text": "...", "tokens": 1990}],
//	  "quarantined": false
//	}
//
// # Tool: split_file
//
// Runs the batch driver over an absolute JSONL path. Output directories
// default to the configured ones. When a ledger is configured the run and
// its reports are recorded.
//
// # Tool: get_run_report
//
// Returns the latest run, or the run named by run_id, with classification
// counts and reports optionally filtered by classification.
//
// # Error Codes
//
//	-32602: Invalid parameters
//	-32603: Internal error
//	-32001: Input file not found
//	-32002: No run ledger configured
//	-32003: Run not found
//	-32004: Split already in progress for the same output files
package mcp
