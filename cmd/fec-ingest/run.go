package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/fec-ingest/internal/config"
	"github.com/Sternrassler/fec-ingest/pkg/ingest"
	"github.com/Sternrassler/fec-ingest/pkg/logging"
	"github.com/Sternrassler/fec-ingest/pkg/metrics"
	"github.com/Sternrassler/fec-ingest/pkg/pagination"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch and upsert FEC entities",
	Long: `Fetch every page of each entity for the date window and upsert the
validated records. Entities run in dependency order; a failing entity is
reported and the rest still run.

Without --start/--end the window covers the last FEC_LOOKBACK_DAYS days,
ending today in America/New_York.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, &cfg)
		return runIngest(cmd.Context(), cfg, runOpts, cmd.OutOrStdout())
	},
}

type runOptions struct {
	entities     []string
	start        string
	end          string
	params       []string
	migrate      bool
	concurrency  int
	maxPages     int
	chunkSize    int
	lookbackDays int
}

var runOpts runOptions

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runOpts.entities, "entity", nil, "Entities to ingest (default: all, in dependency order)")
	f.StringVar(&runOpts.start, "start", "", "Window start date (YYYY-MM-DD)")
	f.StringVar(&runOpts.end, "end", "", "Window end date (YYYY-MM-DD)")
	f.StringArrayVar(&runOpts.params, "param", nil, "Extra query parameter key=value (repeatable)")
	f.BoolVar(&runOpts.migrate, "migrate", false, "Create the schema before ingesting")
	f.IntVar(&runOpts.concurrency, "concurrency", 0, "Concurrent page fetches (overrides FEC_CONCURRENCY)")
	f.IntVar(&runOpts.maxPages, "max-pages", 0, "Stop after this many pages per entity (overrides FEC_MAX_PAGES)")
	f.IntVar(&runOpts.chunkSize, "chunk-size", 0, "Rows per upsert statement (overrides FEC_CHUNK_SIZE)")
	f.IntVar(&runOpts.lookbackDays, "lookback-days", 0, "Default window length in days (overrides FEC_LOOKBACK_DAYS)")
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("concurrency") && runOpts.concurrency > 0 {
		c.Concurrency = runOpts.concurrency
	}
	if f.Changed("max-pages") && runOpts.maxPages >= 0 {
		c.MaxPages = runOpts.maxPages
	}
	if f.Changed("chunk-size") && runOpts.chunkSize > 0 {
		c.ChunkSize = runOpts.chunkSize
	}
	if f.Changed("lookback-days") && runOpts.lookbackDays > 0 {
		c.LookbackDays = runOpts.lookbackDays
	}
}

func runIngest(ctx context.Context, c config.Config, opts runOptions, out io.Writer) error {
	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	d, err := openDeps(ctx, c)
	if err != nil {
		return err
	}
	defer d.Close()

	if opts.migrate {
		if err := d.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if c.MetricsAddr != "" {
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := metrics.Serve(metricsCtx, c.MetricsAddr); err != nil {
				logger := logging.NewLogger("metrics")
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	manager := ingest.NewManager(d.client, d.store, nil, ingest.Config{
		Pagination: pagination.Config{
			MaxConcurrency: c.Concurrency,
			MaxPages:       c.MaxPages,
		},
		ChunkSize:    c.ChunkSize,
		LookbackDays: c.LookbackDays,
	}, logging.NewLogger("ingest"))

	results := manager.IngestAll(ctx, opts.entities, req)
	printResults(out, results)

	return ingest.Failed(results)
}

func buildRequest(opts runOptions) (ingest.Request, error) {
	start, err := ingest.ParseDate(opts.start)
	if err != nil {
		return ingest.Request{}, fmt.Errorf("--start: %w", err)
	}
	end, err := ingest.ParseDate(opts.end)
	if err != nil {
		return ingest.Request{}, fmt.Errorf("--end: %w", err)
	}
	params, err := parseParams(opts.params)
	if err != nil {
		return ingest.Request{}, err
	}
	return ingest.Request{Start: start, End: end, Params: params}, nil
}

// parseParams turns repeated key=value flags into query parameters.
func parseParams(pairs []string) (url.Values, error) {
	params := url.Values{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--param %q: want key=value", p)
		}
		params.Add(key, value)
	}
	return params, nil
}

func printResults(out io.Writer, results []ingest.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tWINDOW\tFETCHED\tREJECTED\tUPSERTED\tERRORS\tSTATUS")
	for _, r := range results {
		var window string
		var fetched, rejected, upserted, errs int
		if r.Report != nil {
			window = r.Report.Window.String()
			fetched = r.Report.Fetched
			rejected = len(r.Report.Rejected)
			if r.Report.Stats != nil {
				upserted = r.Report.Stats.Upserted
				errs = r.Report.Stats.Errors
			}
		}
		status := "ok"
		if r.Err != nil {
			status = "failed: " + r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", r.Entity, window, fetched, rejected, upserted, errs, status)
	}
	w.Flush()
}
