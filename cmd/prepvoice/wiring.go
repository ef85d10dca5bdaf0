package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/prepvoice/internal/config"
	"github.com/MrWong99/prepvoice/internal/controller"
	"github.com/MrWong99/prepvoice/internal/persistence"
	"github.com/MrWong99/prepvoice/internal/persistence/filestore"
	"github.com/MrWong99/prepvoice/internal/persistence/httpapi"
	"github.com/MrWong99/prepvoice/internal/persistence/postgres"
	"github.com/MrWong99/prepvoice/internal/server"
	"github.com/MrWong99/prepvoice/internal/transcript"
	"github.com/MrWong99/prepvoice/internal/transcript/phonetic"
)

const (
	defaultHTTPTimeout  = 15 * time.Second
	postgresOpenTimeout = 10 * time.Second
)

// backends builds persistence backends for the registry and tracks the
// resources they own.
type backends struct {
	ctx context.Context

	mu      sync.Mutex
	closers []func()
	checks  []server.Checker
}

func newBackends(ctx context.Context) *backends {
	return &backends{ctx: ctx}
}

// register installs the factory for every built-in backend kind.
func (b *backends) register(reg *config.Registry) {
	reg.RegisterBackend(config.BackendHTTP, b.newHTTP)
	reg.RegisterBackend(config.BackendPostgres, b.newPostgres)
	reg.RegisterBackend(config.BackendFile, b.newFile)
}

func (b *backends) newHTTP(entry config.BackendEntry) (persistence.Service, error) {
	timeout := entry.Timeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	return httpapi.New(entry.BaseURL,
		httpapi.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpapi.WithAPIKey(entry.APIKey),
	), nil
}

func (b *backends) newPostgres(entry config.BackendEntry) (persistence.Service, error) {
	ctx, cancel := context.WithTimeout(b.ctx, postgresOpenTimeout)
	defer cancel()

	store, pool, err := postgres.Open(ctx, entry.DSN)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closers = append(b.closers, pool.Close)
	b.checks = append(b.checks, server.Checker{
		Name:  entry.Name,
		Check: pool.Ping,
	})
	return store, nil
}

func (b *backends) newFile(entry config.BackendEntry) (persistence.Service, error) {
	return filestore.New(entry.Path), nil
}

// checkers returns the readiness checks of the backends built so far.
func (b *backends) checkers() []server.Checker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]server.Checker(nil), b.checks...)
}

// Close releases backend resources in reverse creation order.
func (b *backends) Close() {
	b.mu.Lock()
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// buildExtractor assembles a transcript extractor from the extraction
// section. A non-empty vocabulary enables phonetic tech-stack correction.
func buildExtractor(cfg config.ExtractionConfig) *transcript.Extractor {
	opts := []transcript.Option{
		transcript.WithDefaults(transcript.Defaults{
			Role:      cfg.Defaults.Role,
			Level:     cfg.Defaults.Level,
			Type:      cfg.Defaults.Type,
			TechStack: cfg.Defaults.TechStack,
			Question:  cfg.Defaults.Question,
		}),
	}
	if len(cfg.Vocabulary) > 0 {
		var matcherOpts []phonetic.Option
		if cfg.PhoneticThreshold > 0 {
			matcherOpts = append(matcherOpts, phonetic.WithPhoneticThreshold(cfg.PhoneticThreshold))
		}
		if cfg.FuzzyThreshold > 0 {
			matcherOpts = append(matcherOpts, phonetic.WithFuzzyThreshold(cfg.FuzzyThreshold))
		}
		opts = append(opts, transcript.WithCorrector(
			transcript.NewCorrector(phonetic.New(matcherOpts...), cfg.Vocabulary),
		))
	}
	return transcript.New(opts...)
}

// extractorSetter is the part of the controller a reload touches.
type extractorSetter interface {
	SetExtractor(e *transcript.Extractor)
}

var _ extractorSetter = (*controller.Controller)(nil)

// applyReload applies the hot-reloadable parts of a config change.
func applyReload(d config.ConfigDiff, cfg *config.Config, level *slog.LevelVar, ctrl extractorSetter) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "log_level", d.NewLogLevel)
	}
	if d.ExtractionChanged {
		ctrl.SetExtractor(buildExtractor(cfg.Extraction))
		slog.Info("extraction settings reloaded", "vocabulary", len(cfg.Extraction.Vocabulary))
	}
}
