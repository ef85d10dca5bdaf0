package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Voice
	if cfg.Voice.URL != "" && !strings.HasPrefix(cfg.Voice.URL, "ws://") && !strings.HasPrefix(cfg.Voice.URL, "wss://") {
		errs = append(errs, fmt.Errorf("voice.url %q must use the ws or wss scheme", cfg.Voice.URL))
	}
	if cfg.Voice.StopGrace < 0 {
		errs = append(errs, fmt.Errorf("voice.stop_grace %s must not be negative", cfg.Voice.StopGrace))
	}

	// Session ↔ voice target cross-validation
	switch cfg.Session.Mode {
	case "":
	case interview.ModeGenerate:
		if cfg.Voice.URL != "" && cfg.Voice.WorkflowID == "" {
			errs = append(errs, errors.New("session.mode generate requires voice.workflow_id"))
		}
		if cfg.Session.Candidate.ID == "" {
			slog.Warn("session.candidate.id is empty; generated interviews will not be saved")
		}
	case interview.ModeInterview:
		if cfg.Voice.URL != "" && cfg.Voice.InterviewerID == "" {
			errs = append(errs, errors.New("session.mode interview requires voice.interviewer_id"))
		}
		if cfg.Session.InterviewID == "" {
			errs = append(errs, errors.New("session.mode interview requires session.interview_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.mode %q is invalid; valid values: generate, interview", cfg.Session.Mode))
	}

	// Persistence backends
	namesSeen := make(map[string]int, len(cfg.Persistence.Backends))
	for i, b := range cfg.Persistence.Backends {
		prefix := fmt.Sprintf("persistence.backends[%d]", i)
		if !b.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: http, postgres, file", prefix, b.Kind))
			continue
		}
		if b.Name != "" {
			if prev, ok := namesSeen[b.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of persistence.backends[%d]", prefix, b.Name, prev))
			}
			namesSeen[b.Name] = i
		}
		switch b.Kind {
		case BackendHTTP:
			if b.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s: kind http requires base_url", prefix))
			}
		case BackendPostgres:
			if b.DSN == "" {
				errs = append(errs, fmt.Errorf("%s: kind postgres requires dsn", prefix))
			}
		case BackendFile:
			if b.Path == "" {
				errs = append(errs, fmt.Errorf("%s: kind file requires path", prefix))
			}
		}
		if b.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, b.Timeout))
		}
	}
	if len(cfg.Persistence.Backends) == 0 {
		slog.Warn("persistence.backends is empty; session results will not be saved")
	}
	if cfg.Persistence.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("persistence.breaker.max_failures %d must not be negative", cfg.Persistence.Breaker.MaxFailures))
	}
	if cfg.Persistence.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("persistence.breaker.reset_timeout %s must not be negative", cfg.Persistence.Breaker.ResetTimeout))
	}

	// Extraction
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"phonetic_threshold", cfg.Extraction.PhoneticThreshold},
		{"fuzzy_threshold", cfg.Extraction.FuzzyThreshold},
	} {
		if th.value < 0 || th.value > 1 {
			errs = append(errs, fmt.Errorf("extraction.%s %.2f is out of range [0, 1]", th.name, th.value))
		}
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}
