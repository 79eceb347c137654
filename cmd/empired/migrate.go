package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store schema migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		st, closeStore, err := buildStore(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("build store: %w", err)
		}
		defer closeStore()

		if err := st.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", slog.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringP("config", "c", "", "path to the config file")
}
