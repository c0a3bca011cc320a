package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/tokensplit/internal/config"
	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/mcp"
	"github.com/dshills/tokensplit/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tokensplit",
		Short:         "Split JSONL documents into token-bounded chunks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("env-file", "", "Environment file to load (default .env)")
	flags.String("delimiter", "", "Segment delimiter")
	flags.Int("limit", 0, "Token limit per output record")
	flags.String("undelimited", "", "Policy for oversized undelimited documents (pass-through, quarantine)")
	flags.String("oracle", "", "Token oracle provider (tiktoken, heuristic, http)")
	flags.String("oracle-url", "", "Tokenizer endpoint for the http oracle")
	flags.String("db", "", "SQLite run ledger path (empty disables recording)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit JSON logs")

	root.AddCommand(newRunCommand(), newServeCommand(), newDBCommand(), newVersionCommand())
	return root
}

// flagOverrides maps explicitly set flags onto config keys.
var flagOverrides = map[string]string{
	"delimiter":   "delimiter",
	"limit":       "token_limit",
	"undelimited": "undelimited_policy",
	"oracle":      "oracle.provider",
	"oracle-url":  "oracle.url",
	"db":          "db_path",
	"log-level":   "log.level",
	"log-json":    "log.json",
	"workers":     "worker_count",
	"output-dir":  "output_dir",
	"quarantine":  "quarantine_dir",
	"summary-dir": "summary_dir",
}

// loadConfig loads configuration with command-line flags applied last.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := make(map[string]any)
	for name, key := range flagOverrides {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "int":
			v, err := cmd.Flags().GetInt(name)
			if err != nil {
				return nil, err
			}
			overrides[key] = v
		case "bool":
			v, err := cmd.Flags().GetBool(name)
			if err != nil {
				return nil, err
			}
			overrides[key] = v
		default:
			overrides[key] = f.Value.String()
		}
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(config.LoadOptions{EnvFile: envFile, Overrides: overrides})
}

// setup loads config and installs the logger on the command context.
// Commands read it back with logger.FromContext.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LoggerConfig())
	logger.SetDefault(log)
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
	return cfg, nil
}

// openLedger opens the run ledger, or returns nil when no path is configured.
func openLedger(cfg *config.Config) (*storage.SQLiteStorage, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	return store, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tokensplit\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "MCP Server: %s %s\n", mcp.ServerName, mcp.ServerVersion)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			return nil
		},
	}
}
