package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/tokensplit/internal/storage"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or downgrade the run ledger schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the ledger schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withLedger(cmd, func(store *storage.SQLiteStorage) error {
					v, err := store.SchemaVersion(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Schema: %s (binary %s)\n", v, storage.CurrentSchemaVersion)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Revert the most recent schema migration",
			Long: "Revert the most recent schema migration, for example before installing an older release.\n" +
				"Any later tokensplit run against the ledger migrates it forward again.",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withLedger(cmd, func(store *storage.SQLiteStorage) error {
					if err := store.RollbackMigration(cmd.Context()); err != nil {
						return err
					}
					v, err := store.SchemaVersion(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Schema: %s\n", v)
					return nil
				})
			},
		},
	)
	return cmd
}

// withLedger opens the configured ledger for fn and closes it afterwards.
func withLedger(cmd *cobra.Command, fn func(*storage.SQLiteStorage) error) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("no run ledger configured: set --db or TOKENSPLIT_DB_PATH")
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}
