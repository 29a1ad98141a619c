package main

import (
	"fmt"

	"github.com/snarg/scribe-engine/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema and apply pending migrations, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := database.Connect(ctx, cfg.DatabaseURL, log.With().Str("component", "database").Logger())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("database is up to date")
		return nil
	},
}
