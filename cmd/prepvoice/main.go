// Command prepvoice runs one voice-interview session: it places the call
// through the voice engine, records the transcript and, when the call ends,
// stores the generated interview or requests feedback.
//
// Usage:
//
//	prepvoice [-config config.yaml] [-wait]
//	prepvoice extract [-config config.yaml] [-candidate id] transcript.json
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/prepvoice/internal/config"
	"github.com/MrWong99/prepvoice/internal/controller"
	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/observe"
	"github.com/MrWong99/prepvoice/internal/persistence"
	"github.com/MrWong99/prepvoice/internal/server"
	"github.com/MrWong99/prepvoice/internal/voice/ws"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "extract" {
		os.Exit(runExtract(os.Args[2:], os.Stdout))
	}
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	wait := flag.Bool("wait", false, "do not begin the call until POST /session/begin")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "prepvoice: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "prepvoice: %v\n", err)
		}
		return 1
	}
	if cfg.Voice.URL == "" {
		fmt.Fprintln(os.Stderr, "prepvoice: voice.url is required to run a session")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("prepvoice starting",
		"version", version,
		"config", *configPath,
		"mode", cfg.Session.Mode,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Persistence ───────────────────────────────────────────────────────────
	backends := newBackends(ctx)
	defer backends.Close()

	reg := config.NewRegistry()
	backends.register(reg)
	failover, err := reg.BuildPersistence(cfg.Persistence)
	if err != nil {
		slog.Error("failed to build persistence", "err", err)
		return 1
	}
	for _, b := range cfg.Persistence.Backends {
		slog.Info("persistence backend configured", "name", b.Name, "kind", b.Kind)
	}

	// ── Voice engine + controller ─────────────────────────────────────────────
	engine := ws.New(cfg.Voice.URL,
		ws.WithAPIKey(cfg.Voice.APIKey),
		ws.WithStopGrace(cfg.Voice.StopGrace),
	)
	defer engine.Close()

	var store persistence.Service
	if failover != nil {
		store = failover
	}
	ctrl, err := controller.New(engine, store, controllerConfig(cfg),
		controller.WithExtractor(buildExtractor(cfg.Extraction)),
	)
	if err != nil {
		slog.Error("failed to create controller", "err", err)
		return 1
	}
	defer ctrl.Close()

	// ── Config hot reload ─────────────────────────────────────────────────────
	if cfg.Server.WatchConfig {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			applyReload(config.Diff(old, new), new, level, ctrl)
		})
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		defer w.Stop()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	srv := server.New(ctrl,
		server.WithCheckers(backends.checkers()...),
		server.WithTLS(tlsFiles(cfg.Server.TLS)),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.ListenAddr)
	})
	g.Go(func() error {
		defer cancelRun()
		return runSession(gctx, ctrl, !*wait)
	})

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if endErr := ctrl.EndCall(shutdownCtx); endErr != nil {
		slog.Warn("end call on shutdown", "err", endErr)
	}
	_ = ctrl.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runSession begins the call unless begin is false, then waits for the
// session's navigation intent or ctx.
func runSession(ctx context.Context, ctrl *controller.Controller, begin bool) error {
	if begin {
		if err := ctrl.BeginCall(ctx); err != nil {
			return err
		}
	} else {
		slog.Info("waiting for POST /session/begin")
	}

	select {
	case nav := <-ctrl.Navigations():
		slog.Info("session complete", "view", nav.View, "path", nav.Path, "outcome", nav.Outcome)
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
		return nil
	}
}

// controllerConfig maps the session and voice sections onto the controller.
func controllerConfig(cfg *config.Config) controller.Config {
	return controller.Config{
		Mode: cfg.Session.Mode,
		Candidate: interview.Candidate{
			ID:   cfg.Session.Candidate.ID,
			Name: cfg.Session.Candidate.Name,
		},
		InterviewID:   cfg.Session.InterviewID,
		FeedbackID:    cfg.Session.FeedbackID,
		Questions:     cfg.Session.Questions,
		WorkflowID:    cfg.Voice.WorkflowID,
		InterviewerID: cfg.Voice.InterviewerID,
	}
}

func tlsFiles(tls *config.TLSConfig) (string, string) {
	if tls == nil {
		return "", ""
	}
	return tls.CertFile, tls.KeyFile
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

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
