package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/api-harvester/pkg/cache"
	"github.com/Sternrassler/api-harvester/pkg/config"
	"github.com/Sternrassler/api-harvester/pkg/harvest"
	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/Sternrassler/api-harvester/pkg/ratelimit"
	"github.com/Sternrassler/api-harvester/pkg/sink"
	"github.com/Sternrassler/api-harvester/pkg/transport"
	"github.com/redis/go-redis/v9"
)

// source is one configured collection wired to its sink.
type source struct {
	name      string
	harvester *harvest.Harvester
	sink      sink.Sink
}

// buildSources wires transport, pacer, cache and sink for every source.
// redisClient may be nil when neither the cache nor the redis sink is used.
func buildSources(cfg *config.Config, redisClient *redis.Client) ([]source, error) {
	var pageCache *cache.Manager
	if cfg.Cache.Enabled {
		pageCache = cache.NewManager(redisClient)
	}

	sources := make([]source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		s, err := buildSource(cfg, sc, pageCache, redisClient)
		if err != nil {
			_ = closeSources(context.Background(), sources)
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func buildSource(cfg *config.Config, sc config.SourceConfig, pageCache *cache.Manager, redisClient *redis.Client) (source, error) {
	tc, err := cfg.TransportConfig(sc)
	if err != nil {
		return source{}, err
	}
	tc.Cache = pageCache
	tc.Pacer = ratelimit.NewPacer(sc.RateLimitDelay(), logging.WithSource(logging.NewLogger("ratelimit"), sc.Name))

	client, err := transport.New(tc)
	if err != nil {
		return source{}, err
	}

	out, err := newSink(cfg, sc, redisClient)
	if err != nil {
		return source{}, err
	}

	hc, err := sc.HarvestConfig()
	if err != nil {
		return source{}, err
	}

	h, err := harvest.New(hc, harvest.Deps{Fetcher: client, Sink: out})
	if err != nil {
		_ = sink.Close(context.Background(), out)
		return source{}, err
	}

	return source{name: sc.Name, harvester: h, sink: out}, nil
}

// newSink creates the configured sink for sc. With several sources, the dir
// sink writes into a subdirectory per source.
func newSink(cfg *config.Config, sc config.SourceConfig, redisClient *redis.Client) (sink.Sink, error) {
	switch cfg.Sink {
	case config.SinkDir:
		dir := sc.OutputDir
		if len(cfg.Sources) > 1 {
			dir = filepath.Join(dir, sc.Name)
		}
		return sink.NewDir(dir, logging.WithSource(logging.NewLogger("sink"), sc.Name))

	case config.SinkJSONL:
		if err := os.MkdirAll(sc.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		f, err := os.Create(filepath.Join(sc.OutputDir, sc.Name+".jsonl"))
		if err != nil {
			return nil, fmt.Errorf("create jsonl file: %w", err)
		}
		return sink.NewJSONL(f), nil

	case config.SinkRedis:
		if redisClient == nil {
			return nil, errors.New("redis sink needs a redis connection")
		}
		stream := sink.StreamName(cfg.Redis.StreamPrefix, sc.Name)
		return sink.NewRedisStream(redisClient, stream, sc.Name, cfg.Redis.StreamMaxLen), nil

	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

func closeSources(ctx context.Context, sources []source) error {
	var errs []error
	for _, s := range sources {
		if err := sink.Close(ctx, s.sink); err != nil {
			errs = append(errs, fmt.Errorf("close sink of %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
