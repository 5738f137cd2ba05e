// Command huayu is the main entry point for the Huayu Mandarin tutoring server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kaiwenlu/huayu/internal/coach"
	"github.com/kaiwenlu/huayu/internal/config"
	"github.com/kaiwenlu/huayu/internal/conversation"
	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/internal/deck"
	"github.com/kaiwenlu/huayu/internal/health"
	"github.com/kaiwenlu/huayu/internal/observe"
	"github.com/kaiwenlu/huayu/internal/scenario"
	"github.com/kaiwenlu/huayu/internal/server"
	"github.com/kaiwenlu/huayu/pkg/provider/embeddings"
	oaembed "github.com/kaiwenlu/huayu/pkg/provider/embeddings/openai"
	"github.com/kaiwenlu/huayu/pkg/provider/llm"
	"github.com/kaiwenlu/huayu/pkg/provider/llm/anyllm"
	oallm "github.com/kaiwenlu/huayu/pkg/provider/llm/openai"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultListenAddr          = ":8080"
	defaultEmbeddingDimensions = 1536
	shutdownTimeout            = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "huayu: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "huayu: %v\n", err)
		}
		return 1
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	slog.Info("huayu starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Persistence ───────────────────────────────────────────────────────────
	var (
		convStore convstore.Store
		deckStore deck.Store
		probes    []health.Probe
	)
	if cfg.Database.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()

		pg := convstore.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("conversation store migration failed", "err", err)
			return 1
		}
		dims := cfg.Database.EmbeddingDimensions
		if dims == 0 {
			dims = defaultEmbeddingDimensions
		}
		if err := deck.Migrate(ctx, pool, dims); err != nil {
			slog.Error("deck store migration failed", "err", err)
			return 1
		}

		convStore = pg
		deckStore = deck.NewPostgresStore(pool)
		probes = append(probes, health.Probe{Name: "database", Fn: pool.Ping})
		slog.Info("postgres connected", "embedding_dimensions", dims)
	} else {
		convStore = convstore.NewMemStore()
		deckStore = deck.NewMemStore()
		slog.Info("using in-memory stores")
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	chat, err := newChatProvider(cfg.Providers.Chat)
	if err != nil {
		slog.Error("failed to build chat provider", "err", err)
		return 1
	}
	summary, err := secondaryProvider(cfg.Providers.Summary, cfg.Providers.Chat, chat)
	if err != nil {
		slog.Error("failed to build summary provider", "err", err)
		return 1
	}
	feedback, err := secondaryProvider(cfg.Providers.Feedback, cfg.Providers.Chat, chat)
	if err != nil {
		slog.Error("failed to build feedback provider", "err", err)
		return 1
	}

	var embedder embeddings.Provider
	if !cfg.Providers.Embeddings.IsZero() {
		embedder, err = newEmbeddingsProvider(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("failed to build embeddings provider", "err", err)
			return 1
		}
	}

	// ── Scenarios ─────────────────────────────────────────────────────────────
	scenarios, err := scenario.LoadDir(cfg.Scenarios.Dir)
	if err != nil {
		slog.Error("failed to load scenarios", "dir", cfg.Scenarios.Dir, "err", err)
		return 1
	}
	slog.Info("scenarios loaded", "dir", cfg.Scenarios.Dir, "count", scenarios.Len())
	probes = append(probes, health.Probe{Name: "scenarios", Fn: func(context.Context) error {
		if scenarios.Len() == 0 {
			return errors.New("no scenarios loaded")
		}
		return nil
	}})

	// ── Application wiring ────────────────────────────────────────────────────
	orchOpts := []conversation.Option{
		conversation.WithSummariser(conversation.NewLLMSummariser(summary)),
		conversation.WithCoach(coach.New(feedback)),
		conversation.WithMetrics(metrics),
	}
	if cfg.Learning.HistoryWindow > 0 {
		orchOpts = append(orchOpts, conversation.WithHistoryWindow(cfg.Learning.HistoryWindow))
	}
	orchestrator, err := conversation.New(convStore, chat, orchOpts...)
	if err != nil {
		slog.Error("failed to initialise orchestrator", "err", err)
		return 1
	}

	flashcards, err := deck.New(deckStore, embedder)
	if err != nil {
		slog.Error("failed to initialise deck", "err", err)
		return 1
	}

	srv, err := server.New(server.Config{
		Orchestrator: orchestrator,
		Store:        convStore,
		Scenarios:    scenarios,
		Deck:         flashcards,
		Metrics:      metrics,
	})
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.ListenAddr)
	})
	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error {
			return runMetricsListener(gctx, cfg.Server.MetricsAddr, probes)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// newChatProvider builds an [llm.Provider] from a config entry. The entry's
// name selects the implementation: "openai" for the native client, or
// "anyllm:<backend>" for any backend the any-llm-go library supports.
func newChatProvider(entry config.ProviderEntry) (llm.Provider, error) {
	if backend, ok := strings.CutPrefix(entry.Name, "anyllm:"); ok {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	}

	switch entry.Name {
	case "openai":
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", entry.Name)
	}
}

// secondaryProvider builds the provider for a secondary capability (summary,
// feedback). An unset entry falls back to the chat provider; an entry equal
// to the chat entry reuses the already-built client.
func secondaryProvider(entry, chatEntry config.ProviderEntry, chat llm.Provider) (llm.Provider, error) {
	if entry.IsZero() || entry == chatEntry {
		return chat, nil
	}
	return newChatProvider(entry)
}

func newEmbeddingsProvider(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// runMetricsListener serves Prometheus metrics and health probes on addr
// until ctx is cancelled.
func runMetricsListener(ctx context.Context, addr string, probes []health.Probe) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(probes...).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	slog.Info("metrics listener started", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("metrics listener shutdown: %w", err)
		}
		return nil
	}
}

// newLogger builds the process-wide logger from the configured level and
// format. Unset values default to info-level text output.
func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
