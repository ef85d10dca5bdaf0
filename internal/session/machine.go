// Package session implements the per-call state machine.
//
// A [Machine] owns everything that belongs to one call: the [CallState], the
// finalised transcript, the speaking flag, the last line heard, and the
// one-shot latch that guarantees the end-of-call work is planned exactly once.
// It performs no I/O. The controller feeds it engine events and user commands
// and executes the [Plan] it returns from [Machine.Finish].
//
// A machine never leaves [StateFinished]. Retrying a call means building a new
// machine.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/transcript"
	"github.com/MrWong99/prepvoice/internal/voice"
)

// ErrInvalidTransition is returned when a command is not allowed in the
// machine's current state.
var ErrInvalidTransition = errors.New("session: invalid transition")

// PlanKind tells the controller which persistence call to make when the
// session finishes.
type PlanKind int

const (
	// PlanSkip means there is nothing to persist.
	PlanSkip PlanKind = iota

	// PlanFeedback requests feedback on a completed interview.
	PlanFeedback

	// PlanCreateInterview stores a spec extracted from a generate session.
	PlanCreateInterview
)

// String returns the name of the plan kind.
func (k PlanKind) String() string {
	switch k {
	case PlanSkip:
		return "skip"
	case PlanFeedback:
		return "feedback"
	case PlanCreateInterview:
		return "create_interview"
	default:
		return "unknown"
	}
}

// Plan is the end-of-call work computed by [Machine.Finish].
type Plan struct {
	Kind PlanKind

	// Feedback is set for [PlanFeedback].
	Feedback interview.FeedbackRequest

	// Extraction is set for [PlanCreateInterview].
	Extraction transcript.Result

	// Reason explains a [PlanSkip].
	Reason string
}

// Config describes one session.
type Config struct {
	Mode      interview.Mode
	Candidate interview.Candidate

	// InterviewID and FeedbackID are only used in interview mode. FeedbackID
	// is optional and asks the persistence service to overwrite an existing
	// feedback record.
	InterviewID string
	FeedbackID  string

	// Extractor builds the spec for generate sessions. Nil uses
	// [transcript.New] with built-in defaults.
	Extractor *transcript.Extractor
}

// Snapshot is a consistent read of the observable session state.
type Snapshot struct {
	Mode        interview.Mode `json:"mode"`
	State       CallState      `json:"state"`
	Speaking    bool           `json:"speaking"`
	LastMessage string         `json:"lastMessage"`
	Entries     int            `json:"entries"`
}

// Machine is safe for concurrent use.
type Machine struct {
	cfg Config

	mu          sync.Mutex
	state       CallState
	entries     []interview.TranscriptEntry
	speaking    bool
	lastMessage string
	dispatched  bool
}

// New returns a machine in [StateIdle].
func New(cfg Config) (*Machine, error) {
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("session: unknown mode %q", cfg.Mode)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = transcript.New()
	}
	return &Machine{cfg: cfg, state: StateIdle}, nil
}

// Mode returns the session mode.
func (m *Machine) Mode() interview.Mode { return m.cfg.Mode }

// Candidate returns the session's candidate.
func (m *Machine) Candidate() interview.Candidate { return m.cfg.Candidate }

// Begin moves Idle → Connecting.
func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateConnecting
	return nil
}

// CallStarted moves Connecting → Active. It reports whether the transition
// happened; in any other state the event is ignored.
func (m *Machine) CallStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting {
		return false
	}
	m.state = StateActive
	return true
}

// Finish moves Connecting or Active to Finished and returns the end-of-call
// plan. The second result is true exactly once per machine; every other call
// (including from Idle) returns false and changes nothing.
func (m *Machine) Finish() (Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting && m.state != StateActive {
		return Plan{}, false
	}
	m.state = StateFinished
	m.speaking = false

	if m.dispatched {
		return Plan{}, false
	}
	m.dispatched = true
	return m.plan(), true
}

// plan must be called with m.mu held.
func (m *Machine) plan() Plan {
	entries := slices.Clone(m.entries)

	switch m.cfg.Mode {
	case interview.ModeInterview:
		return Plan{
			Kind: PlanFeedback,
			Feedback: interview.FeedbackRequest{
				InterviewID: m.cfg.InterviewID,
				CandidateID: m.cfg.Candidate.ID,
				FeedbackID:  m.cfg.FeedbackID,
				Transcript:  entries,
			},
		}
	default:
		if len(entries) == 0 {
			return Plan{Kind: PlanSkip, Reason: "empty transcript"}
		}
		if m.cfg.Candidate.ID == "" {
			return Plan{Kind: PlanSkip, Reason: "unknown candidate"}
		}
		return Plan{
			Kind:       PlanCreateInterview,
			Extraction: m.cfg.Extractor.Analyze(m.cfg.Candidate.ID, entries),
		}
	}
}

// Append records msg when it is a final transcript and the call is
// Connecting or Active. It reports whether an entry was added.
func (m *Machine) Append(msg voice.Message) bool {
	if !msg.IsFinalTranscript() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting && m.state != StateActive {
		return false
	}
	m.entries = append(m.entries, interview.TranscriptEntry{
		Speaker: interview.SpeakerFromRole(msg.Role),
		Text:    msg.Transcript,
	})
	m.lastMessage = msg.Transcript
	return true
}

// SetSpeaking records whether the interviewer agent is talking.
func (m *Machine) SetSpeaking(speaking bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = speaking
}

// State returns the current state.
func (m *Machine) State() CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Speaking reports whether the interviewer agent is talking.
func (m *Machine) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// LastMessage returns the text of the most recent final transcript, or "".
func (m *Machine) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// Transcript returns a copy of the entries recorded so far.
func (m *Machine) Transcript() []interview.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Snapshot returns all observables under one lock.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Mode:        m.cfg.Mode,
		State:       m.state,
		Speaking:    m.speaking,
		LastMessage: m.lastMessage,
		Entries:     len(m.entries),
	}
}
