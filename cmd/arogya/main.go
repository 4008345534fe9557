package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/arogya/internal/api"
	"github.com/MikeSquared-Agency/arogya/internal/config"
	"github.com/MikeSquared-Agency/arogya/internal/consult"
	"github.com/MikeSquared-Agency/arogya/internal/intake"
	"github.com/MikeSquared-Agency/arogya/internal/keys"
	"github.com/MikeSquared-Agency/arogya/internal/llm"
	"github.com/MikeSquared-Agency/arogya/internal/notify"
	"github.com/MikeSquared-Agency/arogya/internal/report"
	"github.com/MikeSquared-Agency/arogya/internal/slack"
	"github.com/MikeSquared-Agency/arogya/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("arogya starting", "port", cfg.Port, "env", cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiKeys := keys.Keys{
		Groq:       cfg.GroqAPIKey,
		Perplexity: cfg.PerplexityAPIKey,
		Gemini:     cfg.GeminiAPIKey,
	}
	if cfg.RelayURL != "" {
		fetched, err := keys.NewFetcher(cfg.RelayURL, cfg.RelayToken).Fetch(ctx)
		if err != nil {
			slog.Warn("key relay unavailable, using local keys", "url", cfg.RelayURL, "error", err)
		} else {
			apiKeys = apiKeys.Merge(fetched)
		}
	}

	chain, err := llm.New(ctx, llm.Config{
		GroqKey:         apiKeys.Groq,
		GroqModel:       cfg.GroqModel,
		PerplexityKey:   apiKeys.Perplexity,
		PerplexityModel: cfg.PerplexityModel,
		GeminiKey:       apiKeys.Gemini,
		GeminiModel:     cfg.GeminiModel,
		Timeout:         cfg.LLMTimeout,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to build llm providers", "error", err)
		os.Exit(1)
	}
	if len(chain.Names()) == 0 {
		slog.Warn("no llm provider configured, every turn will return the apology message")
	} else {
		slog.Info("llm providers ready", "providers", chain.Names())
	}

	exporter := report.NewExporter(cfg.UnidocLicenseKey, slog.Default())
	if !exporter.PDFAvailable() {
		slog.Warn("UNIDOC_LICENSE_API_KEY not set, reports download as text")
	}

	opts := consult.Options{
		Policy: intake.Policy{RecollectPatient: cfg.RecollectPatient},
		TTL:    cfg.SessionTTL,
	}

	// Session store (optional, needed when running more than one replica)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		opts.Store = db
		slog.Info("session store connected")
	} else {
		slog.Info("DATABASE_URL not set, sessions are held in memory only")
	}

	// NATS events (optional)
	var events *notify.Client
	if cfg.NatsURL != "" {
		events, err = notify.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer events.Close()
		opts.Publisher = events
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Slack alerts (optional)
	if cfg.SlackBotToken != "" && cfg.SlackAlertChannel != "" {
		opts.Alerter = slack.NewPoster(cfg.SlackBotToken, cfg.SlackAlertChannel, slog.Default())
		slog.Info("slack emergency alerts ready", "channel", cfg.SlackAlertChannel)
	}

	svc := consult.New(chain, report.NewAssembler(), exporter, opts, slog.Default())
	go svc.RunJanitor(ctx, cfg.JanitorInterval)

	srv := api.NewServer(svc, api.Options{
		Port:       cfg.Port,
		Keys:       apiKeys,
		RelayToken: cfg.RelayToken,
		StaticDir:  cfg.StaticDir,
	}, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	if events != nil {
		if err := events.Publish(notify.SubjectRegistered, notify.Registration{
			Service:   "arogya",
			Providers: chain.Names(),
			PDF:       exporter.PDFAvailable(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("arogya ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	if events != nil {
		if err := events.Drain(); err != nil {
			slog.Warn("NATS drain error", "error", err)
		}
	}
	cancel()
	slog.Info("arogya stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
