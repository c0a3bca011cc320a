package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/mcp"
	"github.com/dshills/tokensplit/internal/oracle"
	"github.com/dshills/tokensplit/internal/storage"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the split tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(cmd.Context())

	o, err := oracle.New(cfg.OracleConfig())
	if err != nil {
		return fmt.Errorf("failed to create token oracle: %w", err)
	}
	defer func() { _ = o.Close() }()

	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	// a nil *SQLiteStorage must not become a non-nil interface
	var ledger storage.Storage
	if store != nil {
		ledger = store
	}

	server, err := mcp.NewServer(cfg, o, ledger, log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	log.Info("MCP server starting", "version", version, "build_mode", storage.BuildMode)
	if err := server.Serve(cmd.Context()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("server stopped")
	return nil
}
