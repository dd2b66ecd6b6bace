// Voxgate is the admission gateway for the text-to-speech API: it serves
// synthesis requests while the global budget lasts, queues them fairly when
// it is exhausted, and drains the queue as budget becomes available.
//
// Usage:
//
//	voxgate [flags]
//	voxgate --config /path/to/voxgate.yaml
//
// @title       voxgate API
// @version     1.0
// @description Text-to-speech conversion with global budgeting and fair queueing.
// @BasePath    /
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nadzzz/voxgate/internal/admission"
	"github.com/nadzzz/voxgate/internal/auth"
	"github.com/nadzzz/voxgate/internal/budget"
	"github.com/nadzzz/voxgate/internal/config"
	"github.com/nadzzz/voxgate/internal/health"
	"github.com/nadzzz/voxgate/internal/queue"
	"github.com/nadzzz/voxgate/internal/synth"
	mocksynth "github.com/nadzzz/voxgate/internal/synth/mock"
	openaisynth "github.com/nadzzz/voxgate/internal/synth/openai"
	pipersynth "github.com/nadzzz/voxgate/internal/synth/piper"
	httptransport "github.com/nadzzz/voxgate/internal/transport/http"
	"github.com/nadzzz/voxgate/internal/usage"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/voxgate.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("voxgate %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("voxgate starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect the shared store. Without Postgres the daemon falls back to
	// in-process state, which only works for a single instance.
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			slog.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	} else {
		slog.Warn("no postgres.url configured, using in-memory stores (single instance only)")
	}

	ledger, store, recorder, verifier, err := buildStores(ctx, cfg, pool)
	if err != nil {
		slog.Error("failed to initialize stores", "error", err)
		os.Exit(1)
	}

	// Initialize the synthesis backend.
	synthesizer, err := buildSynthesizer(cfg)
	if err != nil {
		slog.Error(err.Error(), "backend", cfg.Synth.Backend)
		os.Exit(1)
	}
	defer synthesizer.Close()
	slog.Info("using synthesis backend", "backend", cfg.Synth.Backend)

	// Assemble the admission core.
	waiters := queue.NewWaiters()
	drainer := queue.NewDrainer(store, ledger, synthesizer, waiters, recorder, cfg.Queue.DrainInterval)

	controller := admission.New(ledger, store, synthesizer, waiters, recorder, admission.Options{
		MaxTextLength:   cfg.Limits.MaxTextLength,
		RequireAuth:     cfg.Limits.RequireAuth,
		RequireVerified: cfg.Limits.RequireEmailVerification,
		Policy:          admission.Policy(cfg.Queue.Policy),
		HoldTimeout:     cfg.Queue.HoldTimeout,
		Kick:            drainer.Kick,
	})

	// Start the queue drainer.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drainer.Run(ctx)
	}()

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, func(ctx context.Context) (int, bool) {
		st := controller.QueueStatus(ctx, "")
		return st.QueueLength, st.GlobalLimitExceeded
	})
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start the HTTP transport.
	transport := httptransport.New(cfg.Server.Port, controller, verifier)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := transport.Listen(ctx); err != nil {
			slog.Error("http transport failed", "error", err)
			cancel()
		}
	}()

	healthServer.SetReady(true)
	slog.Info("voxgate ready",
		"port", cfg.Server.Port,
		"health_port", cfg.Server.HealthPort,
		"request_limit", cfg.Limits.RequestLimit,
		"window", cfg.Limits.Window,
		"queue_policy", cfg.Queue.Policy)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	if err := transport.Close(); err != nil {
		slog.Error("transport close error", "error", err)
	}

	wg.Wait()
	slog.Info("voxgate stopped")
}

// buildStores wires the budget ledger, queue store, usage recorder, and
// email verifier against Postgres when configured, in-memory otherwise.
func buildStores(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (budget.Ledger, queue.Store, usage.Recorder, auth.Verifier, error) {
	granularity := budget.Granularity(cfg.Limits.Window)

	if pool == nil {
		return budget.NewMemoryLedger(cfg.Limits.RequestLimit, granularity),
			queue.NewMemoryStore(),
			usage.NewMemoryRecorder(),
			&auth.StaticVerifier{},
			nil
	}

	ledger := budget.NewPostgresLedger(pool, cfg.Limits.RequestLimit, granularity)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, nil, err
	}

	store := queue.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, nil, err
	}

	var deduper usage.Deduper
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deduper = usage.NewRedisDeduper(client)
		slog.Info("usage deduplication enabled", "window", cfg.Usage.DedupWindow)
	}

	recorder := usage.NewPostgresRecorder(pool, deduper, cfg.Usage.DedupWindow)
	if err := recorder.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, nil, err
	}

	return ledger, store, recorder, auth.NewPostgresVerifier(pool), nil
}

// buildSynthesizer selects the synthesis backend from config.
func buildSynthesizer(cfg *config.Config) (synth.Synthesizer, error) {
	switch cfg.Synth.Backend {
	case "openai":
		if cfg.Synth.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("synth.openai.api_key is required for the openai backend")
		}
		return openaisynth.New(cfg.Synth.OpenAI), nil
	case "piper":
		return pipersynth.New(cfg.Synth.Piper), nil
	case "mock":
		return mocksynth.New(), nil
	default:
		return nil, fmt.Errorf("unknown synthesis backend %q", cfg.Synth.Backend)
	}
}
