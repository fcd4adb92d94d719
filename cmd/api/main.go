package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"globalroute/internal/api"
	"globalroute/internal/classifier"
	"globalroute/internal/config"
	"globalroute/internal/graph"
	"globalroute/internal/logging"
	"globalroute/internal/metrics"
	"globalroute/internal/observability"
	"globalroute/internal/policy"
	"globalroute/internal/search"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	var checks []api.Check
	g, closeGraph, err := loadGraph(ctx, cfg.Graph, logger, &checks)
	if err != nil {
		return err
	}
	defer closeGraph()
	metrics.RegisterDefault()
	metrics.SetGraph(g.Len(), g.LinkCount())

	opts := search.DefaultOptions()
	if cfg.Search.Benchmarks != nil {
		opts.Benchmarks = *cfg.Search.Benchmarks
	}
	opts.MaxExpansions = cfg.Search.MaxExpansions
	opts.HeuristicCacheSize = cfg.Search.HeuristicCacheSize
	opts.Observer = metrics.Observer{}
	engine, err := search.NewEngine(g, opts, logger.Named("search"))
	if err != nil {
		return err
	}

	resolver, closeCache := newResolver(cfg, logger, &checks)
	defer closeCache()

	srv := api.NewServer(engine, resolver, logger, api.Options{
		SearchTimeout: cfg.Search.Timeout,
		AllowOrigins:  cfg.Server.AllowOrigins,
		RateRPS:       cfg.RateLimit.RPS,
		RateBurst:     cfg.RateLimit.Burst,
		Debug:         cfg.Server.Debug,
		Checks:        checks,
		Settings:      cfg.Redacted(),
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(sctx)
}

// loadGraph reads the snapshot file, or the Postgres tables when no file is
// configured.
func loadGraph(ctx context.Context, cfg config.Graph, logger *zap.Logger, checks *[]api.Check) (*graph.Graph, func(), error) {
	start := time.Now()
	if cfg.Snapshot != "" {
		g, err := graph.LoadFile(cfg.Snapshot)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("graph loaded", zap.String("snapshot", cfg.Snapshot),
			zap.Int("locations", g.Len()), zap.Int("links", g.LinkCount()), zap.Duration("took", time.Since(start)))
		return g, func() {}, nil
	}
	pg, err := graph.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect graph database: %w", err)
	}
	g, err := pg.Load(ctx)
	if err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	*checks = append(*checks, api.Check{Name: "postgres", Ping: pg.Ping})
	logger.Info("graph loaded from postgres",
		zap.Int("locations", g.Len()), zap.Int("links", g.LinkCount()), zap.Duration("took", time.Since(start)))
	return g, func() { _ = pg.Close() }, nil
}

func newResolver(cfg config.Config, logger *zap.Logger, checks *[]api.Check) (*policy.Resolver, func()) {
	log := logger.Named("policy")
	var c classifier.Classifier
	provider := cfg.ClassifierProvider()
	if provider != "none" {
		catalog, err := classifier.LoadCatalog(cfg.Classifier.Catalog)
		if err != nil {
			log.Warn("item catalog unavailable; country policies will fail open", zap.Error(err))
		} else {
			switch provider {
			case "gemini":
				g := classifier.NewGemini(cfg.Classifier.APIKey, catalog)
				if cfg.Classifier.Endpoint != "" {
					g.Endpoint = cfg.Classifier.Endpoint
				}
				if cfg.Classifier.Model != "" {
					g.Model = cfg.Classifier.Model
				}
				g.MinScore = cfg.Classifier.MinScore
				g.TopMatches = cfg.Classifier.TopMatches
				c = g
			default:
				c = classifier.CatalogOnly{Catalog: catalog, TopMatches: cfg.Classifier.TopMatches, MinScore: cfg.Classifier.MinScore}
			}
			log.Info("classifier ready", zap.String("provider", provider), zap.Int("items", catalog.Len()))
		}
	}

	var cache policy.Cache
	closeCache := func() {}
	if cfg.Cache.RedisURL != "" {
		rc, err := policy.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err == nil {
			cache = rc
			closeCache = func() { _ = rc.Close() }
			*checks = append(*checks, api.Check{Name: "redis", Ping: rc.Ping})
		} else {
			log.Warn("redis cache unavailable; using in-process cache", zap.Error(err))
		}
	}
	if cache == nil {
		cache = policy.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}

	return policy.NewResolver(c, policy.Options{
		Timeout:  cfg.Classifier.Timeout,
		Cache:    cache,
		Observer: metrics.Observer{},
	}, log), closeCache
}
