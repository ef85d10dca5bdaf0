// Package config provides the configuration schema, loader, hot-reload watcher
// and persistence backend registry for prepvoice.
package config

import (
	"time"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// BackendKind selects a persistence backend implementation.
type BackendKind string

const (
	// BackendHTTP talks to the web application's JSON API.
	BackendHTTP BackendKind = "http"

	// BackendPostgres writes directly to a PostgreSQL database.
	BackendPostgres BackendKind = "postgres"

	// BackendFile appends JSON lines to a local file.
	BackendFile BackendKind = "file"
)

// IsValid reports whether k is a recognised backend kind.
func (k BackendKind) IsValid() bool {
	switch k {
	case BackendHTTP, BackendPostgres, BackendFile:
		return true
	}
	return false
}

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Voice       VoiceConfig       `yaml:"voice"`
	Session     SessionConfig     `yaml:"session"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds control server settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the control server binds to (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log level. Reloaded without restart.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// WatchConfig enables polling the config file for changes.
	WatchConfig bool `yaml:"watch_config"`
}

// TLSConfig holds paths to TLS certificate and key files.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// VoiceConfig describes the real-time voice engine connection.
type VoiceConfig struct {
	// URL is the WebSocket endpoint of the voice engine.
	URL string `yaml:"url"`

	// APIKey is sent as a bearer token on the handshake.
	APIKey string `yaml:"api_key"`

	// WorkflowID is the call target for generate sessions.
	WorkflowID string `yaml:"workflow_id"`

	// InterviewerID is the call target for interview sessions.
	InterviewerID string `yaml:"interviewer_id"`

	// StopGrace bounds how long Stop waits for the engine to close the call.
	StopGrace time.Duration `yaml:"stop_grace"`
}

// SessionConfig fixes the parameters of the session the CLI runs.
type SessionConfig struct {
	Mode        interview.Mode  `yaml:"mode"`
	Candidate   CandidateConfig `yaml:"candidate"`
	InterviewID string          `yaml:"interview_id"`
	FeedbackID  string          `yaml:"feedback_id"`
	Questions   []string        `yaml:"questions"`
}

// CandidateConfig identifies the person being interviewed.
type CandidateConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// PersistenceConfig lists the backends tried in order by the failover
// service. The first entry is the primary.
type PersistenceConfig struct {
	Backends []BackendEntry `yaml:"backends"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// BackendEntry configures one persistence backend. Which fields apply
// depends on Kind.
type BackendEntry struct {
	// Name labels the backend in logs and metrics. Defaults to Kind.
	Name string `yaml:"name"`

	Kind BackendKind `yaml:"kind"`

	// BaseURL and APIKey apply to http backends.
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`

	// DSN applies to postgres backends.
	DSN string `yaml:"dsn"`

	// Path applies to file backends.
	Path string `yaml:"path"`
}

// BreakerConfig tunes the per-backend circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ExtractionConfig tunes the transcript extractor. Reloaded without restart;
// the new settings apply to the next session.
type ExtractionConfig struct {
	Defaults ExtractionDefaults `yaml:"defaults"`

	// Vocabulary is the canonical list of technology names tech-stack items
	// are corrected against. Empty disables correction.
	Vocabulary []string `yaml:"vocabulary"`

	// PhoneticThreshold and FuzzyThreshold override the matcher's
	// similarity cut-offs. Zero keeps the built-in value.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`
}

// ExtractionDefaults overrides the fallback table. Empty fields keep the
// built-in defaults.
type ExtractionDefaults struct {
	Role      string   `yaml:"role"`
	Level     string   `yaml:"level"`
	Type      string   `yaml:"type"`
	TechStack []string `yaml:"tech_stack"`
	Question  string   `yaml:"question"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName      string  `yaml:"service_name"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// applyDefaults fills unset fields that have a sensible default.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Session.Mode == "" {
		c.Session.Mode = interview.ModeGenerate
	}
	if c.Voice.StopGrace == 0 {
		c.Voice.StopGrace = 5 * time.Second
	}
	for i := range c.Persistence.Backends {
		b := &c.Persistence.Backends[i]
		if b.Name == "" {
			b.Name = string(b.Kind)
		}
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "prepvoice"
	}
	if c.Telemetry.TraceSampleRatio == 0 {
		c.Telemetry.TraceSampleRatio = 1.0
	}
}
