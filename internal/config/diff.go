package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only the log level and the extraction section are applied without a
// restart; every other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ExtractionChanged is true when defaults, vocabulary or thresholds
	// changed. The new settings apply to the next session.
	ExtractionChanged bool

	// RestartRequired names the top-level sections (or fields) whose change
	// only takes effect after a restart, in schema order.
	RestartRequired []string
}

// HasChanges reports whether d carries any change at all.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.ExtractionChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !extractionEqual(old.Extraction, new.Extraction) {
		d.ExtractionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.WatchConfig != new.Server.WatchConfig ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if !sessionEqual(old.Session, new.Session) {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Persistence.Breaker != new.Persistence.Breaker || !slices.Equal(old.Persistence.Backends, new.Persistence.Backends) {
		d.RestartRequired = append(d.RestartRequired, "persistence")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func extractionEqual(a, b ExtractionConfig) bool {
	return a.Defaults.Role == b.Defaults.Role &&
		a.Defaults.Level == b.Defaults.Level &&
		a.Defaults.Type == b.Defaults.Type &&
		a.Defaults.Question == b.Defaults.Question &&
		slices.Equal(a.Defaults.TechStack, b.Defaults.TechStack) &&
		slices.Equal(a.Vocabulary, b.Vocabulary) &&
		a.PhoneticThreshold == b.PhoneticThreshold &&
		a.FuzzyThreshold == b.FuzzyThreshold
}

func sessionEqual(a, b SessionConfig) bool {
	return a.Mode == b.Mode &&
		a.Candidate == b.Candidate &&
		a.InterviewID == b.InterviewID &&
		a.FeedbackID == b.FeedbackID &&
		slices.Equal(a.Questions, b.Questions)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
