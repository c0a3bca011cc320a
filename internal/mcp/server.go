package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/tokensplit/internal/config"
	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/oracle"
	"github.com/dshills/tokensplit/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "tokensplit"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	cfg     *config.Config
	oracle  oracle.Oracle
	storage storage.Storage // nil when no run ledger is configured
	log     logger.Logger

	outputs fileLocks
}

// NewServer creates a new MCP server instance. store may be nil, in which
// case get_run_report is unavailable and split_file runs are not recorded.
func NewServer(cfg *config.Config, o oracle.Oracle, store storage.Storage, log logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if o == nil {
		return nil, fmt.Errorf("token oracle is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		cfg:     cfg,
		oracle:  o,
		storage: store,
		log:     log,
	}

	// Register tools
	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until ctx is done or
// stdin is closed
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO serves MCP over the given streams. Cancellation of ctx is a clean
// shutdown. The storage is closed on return.
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() {
		if s.storage != nil {
			_ = s.storage.Close()
		}
	}()
	s.log.Info("serving MCP on stdio", "oracle", s.oracle.Name(), "ledger", s.storage != nil)

	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(splitDocumentTool(), s.withLogger("split_document", s.handleSplitDocument))
	s.mcp.AddTool(splitFileTool(), s.withLogger("split_file", s.handleSplitFile))
	s.mcp.AddTool(getRunReportTool(), s.withLogger("get_run_report", s.handleGetRunReport))
}

// withLogger puts a tool-scoped logger on the request context.
func (s *Server) withLogger(tool string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = logger.ContextWithLogger(ctx, s.log.With("tool", tool))
		return h(ctx, request)
	}
}
