// Command aihr runs the AI-HR interview server.
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
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/Maratmain/ai-hr/internal/backchannel"
	"github.com/Maratmain/ai-hr/internal/config"
	"github.com/Maratmain/ai-hr/internal/dm"
	"github.com/Maratmain/ai-hr/internal/health"
	"github.com/Maratmain/ai-hr/internal/observe"
	"github.com/Maratmain/ai-hr/internal/profile"
	"github.com/Maratmain/ai-hr/internal/resilience"
	"github.com/Maratmain/ai-hr/internal/retrieval"
	"github.com/Maratmain/ai-hr/internal/scenario"
	"github.com/Maratmain/ai-hr/internal/server"
	"github.com/Maratmain/ai-hr/internal/session"
	"github.com/Maratmain/ai-hr/internal/turn"
	"github.com/Maratmain/ai-hr/pkg/provider/embeddings"
	ollamaembed "github.com/Maratmain/ai-hr/pkg/provider/embeddings/ollama"
	oaembed "github.com/Maratmain/ai-hr/pkg/provider/embeddings/openai"
	"github.com/Maratmain/ai-hr/pkg/provider/llm"
	"github.com/Maratmain/ai-hr/pkg/provider/llm/anyllm"
	"github.com/Maratmain/ai-hr/pkg/provider/llm/llamacpp"
	llmmock "github.com/Maratmain/ai-hr/pkg/provider/llm/mock"
	oallm "github.com/Maratmain/ai-hr/pkg/provider/llm/openai"
	respg "github.com/Maratmain/ai-hr/pkg/resume/postgres"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// Exit codes: 0 clean shutdown, 2 invalid configuration, 3 fatal runtime
// failure (storage, providers, listener).
const (
	exitOK          = 0
	exitBadConfig   = 2
	exitFatal       = 3
	shutdownTimeout = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Local development convenience; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aihr: %v\n", err)
		return exitBadConfig
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("aihr starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot-reload the log level on config file edits; everything else needs a
	// restart and is only reported.
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				logLevel.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.SLAChanged || d.LLMLimitsChanged || d.BackchannelIntervalChanged {
				slog.Warn("interview settings changed on disk; restart to apply")
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "ai-hr",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return exitFatal
	}
	metrics := observe.DefaultMetrics()
	recorder := observe.NewRecorder(metrics,
		observe.WithBudget(observe.StageBackchannel, cfg.BackchannelDeadline()),
		observe.WithBudget(observe.StageRetrieval, cfg.RetrievalTimeout()),
		observe.WithBudget(observe.StageLLM, cfg.LLMDeadline()),
		observe.WithBudget(observe.StageTurn, cfg.TurnDeadline()),
	)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildLLM(cfg, reg, metrics)
	if err != nil {
		slog.Error("llm provider init failed", "err", err)
		return exitFatal
	}
	engine := dm.New(provider,
		dm.WithMaxTokens(cfg.Interview.LLM.MaxTokens),
		dm.WithTemperature(cfg.Interview.LLM.Temperature),
		dm.WithSchemaEnforce(cfg.JSONSchemaEnforced()),
	)

	// ── Stores ────────────────────────────────────────────────────────────────
	scenarios, err := scenario.NewStore(cfg.Interview.ScenarioDir)
	if err != nil {
		slog.Error("scenario store init failed", "dir", cfg.Interview.ScenarioDir, "err", err)
		return exitFatal
	}
	slog.Info("scenario store ready", "dir", cfg.Interview.ScenarioDir, "count", scenarios.Count())

	profiles, err := loadProfiles(cfg.Interview.RolesPath)
	if err != nil {
		slog.Error("role profiles init failed", "path", cfg.Interview.RolesPath, "err", err)
		return exitFatal
	}

	table, err := loadBackchannelTable(cfg.Interview.BackchannelPath)
	if err != nil {
		slog.Error("backchannel table init failed", "path", cfg.Interview.BackchannelPath, "err", err)
		return exitFatal
	}
	backch := backchannel.New(table, cfg.BackchannelMinInterval())

	sessions := session.NewManager(
		session.WithIdleTimeout(cfg.SessionIdleTimeout()),
		session.WithLogger(logger),
		session.WithOnBegin(func(string) {
			metrics.ActiveSessions.Add(context.Background(), 1)
		}),
		session.WithOnEnd(func(id, _ string) {
			metrics.ActiveSessions.Add(context.Background(), -1)
			backch.Forget(id)
		}),
	)
	defer sessions.Close()

	checkers := []health.Checker{
		health.NonEmpty("scenarios", scenarios.Count),
	}

	// ── Resume retrieval (optional) ───────────────────────────────────────────
	orchOpts := []turn.Option{
		turn.WithRecorder(recorder),
		turn.WithLogger(logger),
		turn.WithDeadlines(
			cfg.BackchannelDeadline(),
			cfg.TurnDeadline(),
			cfg.TurnDeadline()-cfg.LLMDeadline(),
		),
	}
	if cfg.Resume.PostgresDSN != "" {
		store, err := respg.NewStore(ctx, cfg.Resume.PostgresDSN, cfg.Resume.EmbeddingDimensions)
		if err != nil {
			slog.Error("resume store init failed", "err", err)
			return exitFatal
		}
		defer store.Close()

		embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("embeddings provider init failed", "err", err)
			return exitFatal
		}
		retriever := retrieval.New(embedder, store,
			retrieval.WithTimeout(cfg.RetrievalTimeout()),
			retrieval.WithTopK(cfg.Interview.Retrieval.TopK),
			retrieval.WithMinScore(cfg.Interview.Retrieval.MinScore),
			retrieval.WithLogger(logger),
		)
		orchOpts = append(orchOpts, turn.WithRetriever(retriever))
		checkers = append(checkers, health.Pinger("resume_store", store))
		slog.Info("resume retrieval enabled",
			"top_k", cfg.Interview.Retrieval.TopK,
			"timeout", cfg.RetrievalTimeout(),
		)
	}

	orch := turn.New(sessions, scenarios, profiles, engine, backch, orchOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(server.Config{
		Sessions:     sessions,
		Orchestrator: orch,
		Scenarios:    scenarios,
		Profiles:     profiles,
		Recorder:     recorder,
		Metrics:      metrics,
		Health:       health.New(checkers...),
		Logger:       logger,
	})

	// No global write timeout: the SSE stream stays open for the whole
	// interview.
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("server ready", "addr", cfg.Server.ListenAddr)

	select {
	case err := <-errCh:
		slog.Error("server failed", "err", err)
		return exitFatal
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	code := exitOK
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		code = exitFatal
	}
	if err := shutdownOtel(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with aihr
// into reg. The LLM names mirror config.ValidProviderNames.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("llamacpp", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llamacpp.Option
		if entry.APIKey != "" {
			opts = append(opts, llamacpp.WithAPIKey(entry.APIKey))
		}
		return llamacpp.New(entry.BaseURL, entry.Model, opts...)
	})

	// The gateway backend multiplexes hosted providers behind any-llm-go;
	// options.provider picks the upstream (anthropic, groq, mistral, ...).
	reg.RegisterLLM("gateway", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "provider")
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// mock keeps the server fully offline: every completion parses to an
	// empty reply, so turns run on the heuristic path.
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "{}"},
		}, nil
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildLLM instantiates the configured LLM backend and wraps it, with any
// declared fallbacks, in a circuit-breaker failover group. The group also
// counts per-backend requests and errors.
func buildLLM(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (llm.Provider, error) {
	entry := cfg.Providers.LLM
	if entry.Name == "" {
		slog.Warn("no llm backend configured; all replies use the heuristic path")
		entry.Name = "mock"
	}

	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("llm provider created", "name", entry.Name, "model", entry.Model)

	group := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{
		Metrics: metrics,
		Kind:    "llm",
	})
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
		slog.Info("llm fallback registered", "name", fb.Name, "model", fb.Model)
	}
	return group, nil
}

// ── Store loaders ─────────────────────────────────────────────────────────────

func loadProfiles(path string) (*profile.Store, error) {
	if path == "" {
		return profile.NewStore(nil)
	}
	return profile.LoadStore(path)
}

func loadBackchannelTable(path string) (backchannel.Table, error) {
	if path == "" {
		return backchannel.DefaultTable(), nil
	}
	return backchannel.LoadTable(path)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string from a provider Options map, "" when absent or
// not a string.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
