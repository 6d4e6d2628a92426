package main

import (
	"fmt"
	"time"

	"github.com/Sternrassler/fec-ingest/pkg/logging"
	"github.com/Sternrassler/fec-ingest/pkg/ratelimit"
	"github.com/spf13/cobra"
)

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the shared Redis rate limit window",
	Long:  "Display the request budget of the current fleet-wide window without consuming from it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := newRedis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rc.Close()

		limiter, err := ratelimit.NewWindowLimiter(rc, cfg.RateRequests, cfg.RateWindow, logging.NewLogger("ratelimit"))
		if err != nil {
			return err
		}

		state, err := limiter.State(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Window:    %s (%s)\n", state.WindowStart.Format(time.RFC3339), cfg.RateWindow)
		fmt.Fprintf(out, "Used:      %d / %d\n", state.Count, state.Limit)
		fmt.Fprintf(out, "Remaining: %d\n", state.Remaining())
		fmt.Fprintf(out, "Resets in: %s\n", state.TimeUntilReset().Round(time.Second))
		return nil
	},
}
