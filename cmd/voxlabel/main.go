// Command voxlabel is the main entry point for the voxlabel speaker
// labeling server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxlabel/voxlabel/internal/app"
	"github.com/voxlabel/voxlabel/internal/config"
	"github.com/voxlabel/voxlabel/internal/health"
	"github.com/voxlabel/voxlabel/internal/lifecycle"
	"github.com/voxlabel/voxlabel/internal/observe"
	"github.com/voxlabel/voxlabel/internal/resilience"
	"github.com/voxlabel/voxlabel/internal/server"
	"github.com/voxlabel/voxlabel/pkg/provider/summarize"
	summarizemock "github.com/voxlabel/voxlabel/pkg/provider/summarize/mock"
	oaisummarize "github.com/voxlabel/voxlabel/pkg/provider/summarize/openai"
	"github.com/voxlabel/voxlabel/pkg/provider/transcribe"
	transcribemock "github.com/voxlabel/voxlabel/pkg/provider/transcribe/mock"
	oaitranscribe "github.com/voxlabel/voxlabel/pkg/provider/transcribe/openai"
)

// defaultListenAddr is used when server.listen_addr is not configured.
const defaultListenAddr = ":8080"

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
			fmt.Fprintf(os.Stderr, "voxlabel: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlabel: %v\n", err)
		}
		return 1
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxlabel starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	obs, err := observe.InitProvider(observe.ProviderConfig{ServiceName: "voxlabel"})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, summarizer, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Session ───────────────────────────────────────────────────────────────
	sess := app.New(app.Config{
		Logger:  logger,
		Metrics: obs.Metrics,
		Lifecycle: lifecycle.Config{
			TimeoutBudget:    cfg.Session.TimeoutBudget,
			WarningThreshold: cfg.Session.WarningThreshold,
			WarningRearm:     cfg.Session.WarningRearm,
			TickInterval:     cfg.Session.TickInterval,
		},
		Transcriber: transcriber,
		Summarizer:  summarizer,
	})
	go sess.Run(ctx)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := []health.Checker{
		health.CheckFunc("session", func(_ context.Context) error {
			// The session is always serviceable; an expired one re-arms on
			// the next interaction.
			_ = sess.Status()
			return nil
		}),
	}

	srvCfg := server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		Logger:          logger,
		Session:         sess,
		Health:          health.New(checks...),
		Metrics:         obs.Metrics,
		MetricsRegistry: obs.Registry,
	}
	if cfg.Server.TLS != nil {
		srvCfg.TLSCertFile = cfg.Server.TLS.CertFile
		srvCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	srv := server.New(srvCfg)

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	sess.Stop()
	if err := obs.Shutdown(context.Background()); err != nil {
		slog.Warn("observability shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the transcription and summarization providers
// named in cfg. Unconfigured providers come back nil; the corresponding
// operations report their absence at call time.
func buildProviders(cfg *config.Config) (transcribe.Provider, summarize.Provider, error) {
	var transcriber transcribe.Provider
	switch name := cfg.Providers.Transcriber.Name; name {
	case "":
	case "openai":
		var opts []oaitranscribe.Option
		if cfg.Providers.Transcriber.BaseURL != "" {
			opts = append(opts, oaitranscribe.WithBaseURL(cfg.Providers.Transcriber.BaseURL))
		}
		p, err := oaitranscribe.New(cfg.Providers.Transcriber.APIKey, cfg.Providers.Transcriber.Model, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create transcriber provider %q: %w", name, err)
		}
		// Remote backends sit behind a circuit breaker so a flapping API
		// does not hang every upload.
		transcriber = resilience.NewTranscribeGroup(p, name, resilience.GroupConfig{})
		slog.Info("provider created", "kind", "transcriber", "name", name)
	case "mock":
		transcriber = &transcribemock.Provider{}
		slog.Info("provider created", "kind", "transcriber", "name", name)
	default:
		return nil, nil, fmt.Errorf("unknown transcriber provider %q", name)
	}

	var summarizer summarize.Provider
	switch name := cfg.Providers.Summarizer.Name; name {
	case "":
	case "openai":
		var opts []oaisummarize.Option
		if cfg.Providers.Summarizer.BaseURL != "" {
			opts = append(opts, oaisummarize.WithBaseURL(cfg.Providers.Summarizer.BaseURL))
		}
		p, err := oaisummarize.New(cfg.Providers.Summarizer.APIKey, cfg.Providers.Summarizer.Model, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create summarizer provider %q: %w", name, err)
		}
		summarizer = resilience.NewSummarizeGroup(p, name, resilience.GroupConfig{})
		slog.Info("provider created", "kind", "summarizer", "name", name)
	case "mock":
		summarizer = &summarizemock.Provider{Summary: "mock summary"}
		slog.Info("provider created", "kind", "summarizer", "name", name)
	default:
		return nil, nil, fmt.Errorf("unknown summarizer provider %q", name)
	}

	return transcriber, summarizer, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxlabel — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Transcriber", cfg.Providers.Transcriber.Name, cfg.Providers.Transcriber.Model)
	printProvider("Summarizer", cfg.Providers.Summarizer.Name, cfg.Providers.Summarizer.Model)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
