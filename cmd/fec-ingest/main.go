package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/fec-ingest/internal/config"
	"github.com/Sternrassler/fec-ingest/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	cfg config.Config

	logLevelFlag string
	prettyFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "fec-ingest",
	Short: "Ingest OpenFEC data into PostgreSQL or SQLite",
	Long: `fec-ingest fetches paginated records from the OpenFEC API under a
request-rate ceiling and upserts them in chunks, isolating bad rows.

Configuration is read from FEC_* environment variables and an optional .env
file; flags override it.

Examples:
  fec-ingest migrate                               # Create the schema
  fec-ingest run                                   # Ingest the last 7 days
  fec-ingest run --start 2024-01-01 --end 2024-01-31
  fec-ingest run --entity candidates --param office=H
  fec-ingest ratelimit                             # Show the shared Redis window`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevelFlag
		}
		if cmd.Flags().Changed("pretty") {
			loaded.LogPretty = prettyFlag
		}

		loc, err := logging.LoadLocation(loaded.LogLocation)
		if err != nil {
			return err
		}
		logging.Setup(logging.Config{
			Level:    logging.LogLevel(loaded.LogLevel),
			Pretty:   loaded.LogPretty,
			Output:   os.Stderr,
			Location: loc,
		})

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&prettyFlag, "pretty", false, "Human-readable console logs instead of JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
