// Package transcript turns a finished interview conversation into a structured
// [interview.Spec].
//
// Extraction is a best-effort heuristic, not a parser. Each labelled field
// ("role:", "level:", "type:", "tech stack:") is searched independently in
// every entry and the last entry carrying a value wins. Question lists follow
// the same overwrite rule. Whatever is still missing after the scan is filled
// from a [Defaults] table, so [Extractor.Extract] never fails and never returns
// a partially empty spec.
//
// The scan is an explicit reduction over the entries into a partial record
// (see fields.go); defaults are applied in a separate final pass. Keeping the
// two apart lets each field be tested on its own.
package transcript

import (
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// Built-in fallback values used when a transcript carries no signal for a
// field.
const (
	DefaultRole     = "Software Developer"
	DefaultLevel    = "All-level"
	DefaultType     = "Mixed"
	DefaultQuestion = "Tell me about yourself?"
)

// defaultTechStack is a single element on purpose: downstream consumers join
// the stack with commas, and this entry already is a comma list.
var defaultTechStack = []string{"JavaScript, React.js, node.js, mongodb,express"}

// Field names a Spec attribute that may be filled from [Defaults].
type Field string

const (
	FieldRole      Field = "role"
	FieldLevel     Field = "level"
	FieldType      Field = "type"
	FieldTechStack Field = "tech_stack"
	FieldQuestions Field = "questions"
)

// Defaults is the fallback table applied after the scan.
type Defaults struct {
	Role      string
	Level     string
	Type      string
	TechStack []string
	Question  string
}

// DefaultFallbacks returns the built-in fallback table.
func DefaultFallbacks() Defaults {
	return Defaults{
		Role:      DefaultRole,
		Level:     DefaultLevel,
		Type:      DefaultType,
		TechStack: slices.Clone(defaultTechStack),
		Question:  DefaultQuestion,
	}
}

// merge returns d with every empty field taken from base.
func (d Defaults) merge(base Defaults) Defaults {
	if d.Role == "" {
		d.Role = base.Role
	}
	if d.Level == "" {
		d.Level = base.Level
	}
	if d.Type == "" {
		d.Type = base.Type
	}
	if len(d.TechStack) == 0 {
		d.TechStack = base.TechStack
	}
	if d.Question == "" {
		d.Question = base.Question
	}
	return d
}

// Result is the outcome of [Extractor.Analyze]: the spec plus the list of
// fields that had to be filled from defaults.
type Result struct {
	Spec interview.Spec

	// Defaulted lists, in field order, every field that fell back. The
	// questions field is only listed when the single default question was
	// used, not when interviewer questions were harvested.
	Defaulted []Field

	// Corrections records tech-stack substitutions made by the configured
	// [Corrector]. Empty when no corrector is set.
	Corrections []Correction
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithDefaults overrides the fallback table. Empty fields in d keep the
// built-in value.
func WithDefaults(d Defaults) Option {
	return func(e *Extractor) {
		e.defaults = d.merge(DefaultFallbacks())
	}
}

// WithClock sets the time source used for [interview.Spec.CreatedAt].
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCorrector aligns extracted tech-stack items to a canonical vocabulary.
func WithCorrector(c *Corrector) Option {
	return func(e *Extractor) {
		e.corrector = c
	}
}

// Extractor derives interview specs from transcripts. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	defaults  Defaults
	now       func() time.Time
	corrector *Corrector
}

// New returns an Extractor using the built-in defaults and the wall clock.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		defaults: DefaultFallbacks(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract builds a fully populated spec for candidateID from entries.
// entries may be empty.
func (e *Extractor) Extract(candidateID string, entries []interview.TranscriptEntry) interview.Spec {
	return e.Analyze(candidateID, entries).Spec
}

// Analyze is [Extractor.Extract] with a report of which fields defaulted.
func (e *Extractor) Analyze(candidateID string, entries []interview.TranscriptEntry) Result {
	f := scan(entries)

	var corrections []Correction
	if e.corrector != nil && len(f.techStack) > 0 {
		f.techStack, corrections = e.corrector.Correct(f.techStack)
	}

	spec, defaulted := e.applyDefaults(f, entries)
	spec.CandidateID = candidateID
	spec.Finalized = true
	spec.CreatedAt = e.now().UTC()

	return Result{Spec: spec, Defaulted: defaulted, Corrections: corrections}
}

// applyDefaults fills every empty field of f. Each rule triggers on
// emptiness only.
func (e *Extractor) applyDefaults(f fields, entries []interview.TranscriptEntry) (interview.Spec, []Field) {
	var defaulted []Field
	spec := interview.Spec{
		Role:      f.role,
		Level:     f.level,
		Type:      f.typ,
		TechStack: f.techStack,
		Questions: f.questions,
	}

	if spec.Role == "" {
		spec.Role = e.defaults.Role
		defaulted = append(defaulted, FieldRole)
	}
	if spec.Level == "" {
		spec.Level = e.defaults.Level
		defaulted = append(defaulted, FieldLevel)
	}
	if spec.Type == "" {
		spec.Type = e.defaults.Type
		defaulted = append(defaulted, FieldType)
	}
	if len(spec.TechStack) == 0 {
		spec.TechStack = slices.Clone(e.defaults.TechStack)
		defaulted = append(defaulted, FieldTechStack)
	}
	if len(spec.Questions) == 0 {
		spec.Questions = interviewerQuestions(entries)
		if len(spec.Questions) == 0 {
			spec.Questions = []string{e.defaults.Question}
			defaulted = append(defaulted, FieldQuestions)
		}
	}
	return spec, defaulted
}

// interviewerQuestions harvests every line spoken by the interviewer agent
// that ends in a question mark.
func interviewerQuestions(entries []interview.TranscriptEntry) []string {
	var out []string
	for _, entry := range entries {
		if entry.Speaker != interview.SpeakerInterviewer {
			continue
		}
		for line := range strings.SplitSeq(entry.Text, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasSuffix(line, "?") {
				out = append(out, line)
			}
		}
	}
	return out
}
