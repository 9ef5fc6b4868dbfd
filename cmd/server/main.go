// Package main runs the unified market-state engine:
// - Ingest: bounded write queue + single drain worker over the hot store
// - Feed: WebSocket market-data adapter
// - Cycles: per-(coin, threshold) cycle state machines
// - Trailing: tiered trailing-stop exit engine
// - Archive: snapshot + remote mirror sync, retention janitor
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"market-state-engine/internal/archive"
	chsink "market-state-engine/internal/archive/clickhouse"
	pgsink "market-state-engine/internal/archive/postgres"
	"market-state-engine/internal/cycles"
	"market-state-engine/internal/feed"
	"market-state-engine/internal/hotstore"
	"market-state-engine/internal/ingest"
	"market-state-engine/internal/observability"
	"market-state-engine/internal/schema"
	"market-state-engine/internal/trailing"
)

func main() {
	// Load .env file if exists; system env vars win.
	_ = godotenv.Load()

	feedEndpoint := flag.String("feed-endpoint", os.Getenv("FEED_WS_ENDPOINT"), "Market-data WebSocket endpoint")
	tokens := flag.String("tokens", os.Getenv("TOKENS"), "Comma-separated tokens to track")
	thresholds := flag.String("thresholds", envOr("CYCLE_THRESHOLDS", "0.02,0.05,0.10"), "Comma-separated cycle drawdown thresholds")
	policyFiles := flag.String("policy-files", os.Getenv("POLICY_FILES"), "Comma-separated tolerance policy YAML files")
	defaultPolicy := flag.String("default-policy", envOr("DEFAULT_POLICY", ""), "Policy used by positions that carry none")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the durable mirror")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the durable mirror")
	snapshotDir := flag.String("snapshot-dir", envOr("SNAPSHOT_DIR", "snapshots"), "Local snapshot directory")
	queueCapacity := flag.Int("queue-capacity", 65536, "Ingest queue capacity")
	batchSize := flag.Int("batch-size", 256, "Drain worker batch size")
	flushInterval := flag.Duration("flush-interval", 50*time.Millisecond, "Drain worker flush interval")
	pollInterval := flag.Duration("poll-interval", time.Second, "Cycle tracker and trailing engine poll interval")
	maxPriceAge := flag.Duration("max-price-age", 0, "Reject prices older than this as a feed gap (0 disables)")
	syncInterval := flag.Duration("sync-interval", time.Minute, "Archival sync interval")
	cleanupInterval := flag.Duration("cleanup-interval", time.Hour, "Retention eviction interval")
	retentionHours := flag.Int("retention-hours", 48, "Hot window in hours for timeseries tables")
	httpAddr := flag.String("http-addr", envOr("HTTP_ADDR", ":9090"), "HTTP address for metrics, health and status")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level (trace, debug, info, warn, error)")

	flag.Parse()

	logger := newLogger(*logLevel)

	tokenList := splitList(*tokens)
	if len(tokenList) == 0 {
		logger.Fatal().Msg("--tokens is required")
	}
	thresholdList, err := parseThresholds(*thresholds)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --thresholds")
	}
	if *postgresDSN == "" && *clickhouseDSN == "" {
		logger.Fatal().Msg("--postgres-dsn or --clickhouse-dsn is required")
	}

	policies := trailing.PolicySet{}
	if files := splitList(*policyFiles); len(files) > 0 {
		policies, err = trailing.LoadPolicyFiles(files)
		if err != nil {
			logger.Fatal().Err(err).Msg("loading tolerance policies failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("")

	// Hot store, queue, drain worker.
	store := hotstore.New()
	queue := ingest.NewQueue(*queueCapacity, metrics)
	drainer := ingest.NewDrainer(queue, store, ingest.DrainerOptions{
		BatchSize:     *batchSize,
		FlushInterval: *flushInterval,
		Metrics:       metrics,
		Logger:        logger,
	})

	// Durable sink.
	sink, err := createSink(ctx, *postgresDSN, *clickhouseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("creating durable sink failed")
	}
	defer sink.Close()

	writer, err := archive.NewSnapshotWriter(*snapshotDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("creating snapshot writer failed")
	}

	tracker := cycles.NewTracker(store, queue, cycles.TrackerOptions{
		Coins:        tokenList,
		Thresholds:   thresholdList,
		PollInterval: *pollInterval,
		Metrics:      metrics,
		Logger:       logger,
	})

	engine := trailing.NewEngine(store, queue, trailing.EngineOptions{
		Policies:      policies,
		DefaultPolicy: *defaultPolicy,
		PollInterval:  *pollInterval,
		MaxPriceAge:   *maxPriceAge,
		Metrics:       metrics,
		Logger:        logger,
	})

	syncer := archive.NewSyncer(store, writer, sink, archive.SyncerOptions{
		Interval: *syncInterval,
		Metrics:  metrics,
		Logger:   logger,
	})

	retention := time.Duration(*retentionHours) * time.Hour
	janitor := archive.NewJanitor(store, queue, archive.RetentionOptions{
		Windows: map[string]time.Duration{
			schema.TablePrices:       retention,
			schema.TableOrderBook:    retention,
			schema.TableCycleTracker: retention,
			schema.TablePriceChecks:  retention,
		},
		CleanupInterval: *cleanupInterval,
		Metrics:         metrics,
		Logger:          logger,
	})

	var feedClient *feed.Client
	if *feedEndpoint != "" {
		cfg := feed.DefaultConfig()
		cfg.Endpoint = *feedEndpoint
		cfg.Tokens = tokenList
		feedClient = feed.NewClient(cfg, queue, metrics, logger)
	}

	srv := &server{
		store:   store,
		queue:   queue,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
	go srv.serveHTTP(*httpAddr)

	// Handle shutdown signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && err != context.Canceled {
				logger.Error().Err(err).Str("component", name).Msg("component stopped")
				cancel()
			}
		}()
	}

	run("drain", drainer.Run)
	run("cycles", tracker.Run)
	run("trailing", engine.Run)
	run("archive", syncer.Run)
	run("retention", janitor.Run)
	if feedClient != nil {
		run("feed", feedClient.Run)
	}

	logger.Info().
		Strs("tokens", tokenList).
		Floats64("thresholds", thresholdList).
		Str("sink", sink.Name()).
		Msg("engine started")

	<-ctx.Done()
	if feedClient != nil {
		feedClient.Close()
	}
	queue.Close()
	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

// createSink picks the durable mirror backend from the configured DSNs.
// Postgres wins when both are set; ClickHouse is the analytical dialect.
func createSink(ctx context.Context, postgresDSN, clickhouseDSN string) (archive.Sink, error) {
	if postgresDSN != "" {
		pool, err := pgsink.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pgsink.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pgsink.NewSink(pool), nil
	}

	conn, err := chsink.NewConn(ctx, clickhouseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := chsink.RunMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return chsink.NewSink(conn), nil
}

// server exposes the HTTP surface: health, metrics and status.
type server struct {
	store   *hotstore.Store
	queue   *ingest.Queue
	metrics *observability.Metrics
	logger  zerolog.Logger
	started time.Time
}

func (s *server) serveHTTP(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("http server error")
	}
}

// statusResponse is the JSON payload of /status.
type statusResponse struct {
	Status     string                         `json:"status"`
	Uptime     string                         `json:"uptime"`
	QueueDepth int                            `json:"queue_depth"`
	Tables     map[string]hotstore.TableStats `json:"tables"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).String(),
		QueueDepth: s.queue.Depth(),
		Tables:     s.store.Stats().Tables,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseThresholds(s string) ([]float64, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one threshold is required")
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parse threshold %q: %w", p, err)
		}
		if v <= 0 || v >= 1 {
			return nil, fmt.Errorf("threshold %q out of range (0, 1)", p)
		}
		out = append(out, v)
	}
	return out, nil
}
