// Package interview defines the domain types shared by the session state
// machine, the transcript extractor, the controller and the persistence
// backends.
//
// The types are plain values. A [Spec] or [FeedbackRequest] is built once at
// the end of a session and handed to persistence; nothing mutates it after
// that point.
package interview

import (
	"strings"
	"time"
)

// Speaker identifies who produced a transcript line.
type Speaker string

const (
	// SpeakerCandidate is the human being interviewed.
	SpeakerCandidate Speaker = "candidate"

	// SpeakerSystem marks system-level utterances injected by the voice engine.
	SpeakerSystem Speaker = "system"

	// SpeakerInterviewer is the AI interviewer agent.
	SpeakerInterviewer Speaker = "interviewer"
)

// SpeakerFromRole maps a voice-engine role ("user", "system", "assistant")
// onto a [Speaker]. Unknown roles are treated as system output.
func SpeakerFromRole(role string) Speaker {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user":
		return SpeakerCandidate
	case "assistant":
		return SpeakerInterviewer
	default:
		return SpeakerSystem
	}
}

// ParseSpeaker maps a speaker name onto a [Speaker]. It accepts the three
// speaker values and "interviewer-agent" as an alias of
// [SpeakerInterviewer], case-insensitively.
func ParseSpeaker(name string) (Speaker, bool) {
	switch Speaker(strings.ToLower(strings.TrimSpace(name))) {
	case SpeakerCandidate:
		return SpeakerCandidate, true
	case SpeakerSystem:
		return SpeakerSystem, true
	case SpeakerInterviewer, "interviewer-agent":
		return SpeakerInterviewer, true
	}
	return "", false
}

// Role returns the voice-engine role string for s. It is the inverse of
// [SpeakerFromRole] and is used on the persistence wire format.
func (s Speaker) Role() string {
	switch s {
	case SpeakerCandidate:
		return "user"
	case SpeakerInterviewer:
		return "assistant"
	default:
		return "system"
	}
}

// TranscriptEntry is one finalised utterance. Entries are appended in
// conversation order and never modified.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Mode is fixed when a session is created and never changes afterwards.
type Mode string

const (
	// ModeGenerate sessions have no pre-existing interview; their job is to
	// synthesise a [Spec] from the conversation.
	ModeGenerate Mode = "generate"

	// ModeInterview sessions run an existing interview and end by requesting
	// feedback on it.
	ModeInterview Mode = "interview"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeGenerate || m == ModeInterview
}

// Candidate identifies the person taking part in the session.
type Candidate struct {
	ID   string
	Name string
}

// Spec is the structured interview definition synthesised from a free-form
// transcript. Every field is populated; the extractor substitutes defaults
// for anything it could not find.
type Spec struct {
	Role        string    `json:"role"`
	Level       string    `json:"level"`
	Type        string    `json:"type"`
	TechStack   []string  `json:"techstack"`
	Questions   []string  `json:"questions"`
	CandidateID string    `json:"userId"`
	Finalized   bool      `json:"finalized"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FeedbackRequest asks the persistence service to evaluate a finished
// interview.
type FeedbackRequest struct {
	InterviewID string            `json:"interviewId"`
	CandidateID string            `json:"userId"`
	FeedbackID  string            `json:"feedbackId,omitempty"`
	Transcript  []TranscriptEntry `json:"transcript"`
}
