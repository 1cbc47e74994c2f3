package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/api-harvester/pkg/config"
	"github.com/Sternrassler/api-harvester/pkg/harvest"
	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest every record of paginated REST APIs",
		Long: `harvester walks a paginated REST collection page by page (page/per_page
or offset/limit), extracts the record array from each JSON response and
writes the records to a sink: one pretty-printed file per page, a JSON
Lines file, or a Redis stream.

Sources come from flags for a single collection, or from a YAML/JSON
config file listing several.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, cmd.Flags(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON)")
	f.StringP("url", "u", "", "base URL of the collection")
	f.StringP("api-key", "a", "", "API key")
	f.String("api-key-header", "X-API-Key", "header carrying the API key")
	f.StringArrayP("header", "H", nil, "extra header KEY=value (repeatable)")
	f.StringP("output-dir", "o", "output", "output directory")
	f.IntP("page-size", "p", 250, "page size or offset limit")
	f.IntP("rate-limit", "r", 100, "minimum delay between requests in milliseconds")
	f.String("pagination-type", "page", "pagination type (page, offset)")
	f.String("data-path", "data", "path of the record array in the response")
	f.String("total-count-path", "totalCount", "path of the total count in the response (empty to disable)")
	f.Int("max-pages", 0, "stop after this many pages (0 = no limit)")
	f.String("sink", config.SinkDir, "output sink (dir, jsonl, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address for the redis sink and the page cache")
	f.Bool("cache", false, "cache pages in Redis and revalidate them on re-runs")
	f.Duration("cache-ttl", 5*time.Minute, "freshness of cached pages without caching headers")
	f.Int("max-retries", 4, "attempts per page, including the first")
	f.Int("concurrency", 4, "sources harvested in parallel")
	f.String("metrics-addr", "", "serve /metrics and /health on this address")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "console", "log format (console, json)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newPurgeCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "harvester %s\n", version)
		},
	}
}

// run loads the configuration and harvests every source.
func run(ctx context.Context, configPath string, flags *pflag.FlagSet, out io.Writer) error {
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(cfg.Logging.LoggerConfig())

	var redisClient *redis.Client
	if cfg.Sink == config.SinkRedis || cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	if cfg.Metrics.Addr != "" {
		srv := startServer(cfg.Metrics.Addr, logger)
		defer shutdownServer(srv, logger)
	}

	sources, err := buildSources(cfg, redisClient)
	if err != nil {
		return err
	}

	harvesters := make([]*harvest.Harvester, len(sources))
	for i, s := range sources {
		harvesters[i] = s.harvester
	}

	results, runErr := harvest.RunAll(ctx, harvesters, cfg.Concurrency)

	// Close with a fresh context so buffered output is written after a cancel.
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	closeErr := closeSources(closeCtx, sources)

	printSummary(out, results)

	return errors.Join(runErr, closeErr)
}

func printSummary(out io.Writer, results []harvest.Result) {
	for _, r := range results {
		status := "total unknown"
		switch {
		case r.TotalKnown && r.TotalMatched:
			status = fmt.Sprintf("total %d matched", r.DeclaredTotal)
		case r.TotalKnown:
			status = fmt.Sprintf("total %d NOT matched", r.DeclaredTotal)
		}
		fmt.Fprintf(out, "%s: %d records in %d pages (%s)\n", r.Source, r.Emitted, r.Pages, status)
	}
}
