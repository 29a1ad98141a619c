package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/spf13/cobra"
)

var version = "dev"

var overrides config.Overrides

var rootCmd = &cobra.Command{
	Use:   "scribe-engine",
	Short: "Transcription backend: AssemblyAI relay, minute balances and Wompi payments",
	Long: `scribe-engine serves the transcription API.
- Relays audio uploads and transcript jobs to AssemblyAI
- Keeps per-user minute balances in PostgreSQL
- Credits minute packages paid through Wompi, exactly once per transaction`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	pf.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection string")
	pf.StringVar(&overrides.PackagesFile, "packages", "", "YAML file with the minute packages on sale")

	serveCmd.Flags().StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd, migrateCmd, packagesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, zerolog.New(os.Stderr).With().Timestamp().Logger(), err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	return cfg, log, nil
}
