// Package voice defines the contract between the session controller and the
// real-time voice engine that runs the actual call.
//
// The engine is an external collaborator. The controller only needs two
// commands ([Engine.Start], [Engine.Stop]) and a stream of lifecycle and
// transcript events delivered through handlers registered with [Engine.On].
// Every registration returns its own unsubscribe function so callers can
// release exactly what they acquired.
//
// Implementations must deliver events for one call sequentially, in the order
// they occurred, from a single goroutine.
package voice

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by [Engine.Stop] implementations that have no
// call in progress and by commands issued after the engine was closed.
var ErrNotConnected = errors.New("voice: not connected")

// EventKind names a voice-engine event.
type EventKind string

const (
	EventCallStart   EventKind = "call-start"
	EventCallEnd     EventKind = "call-end"
	EventMessage     EventKind = "message"
	EventSpeechStart EventKind = "speech-start"
	EventSpeechEnd   EventKind = "speech-end"
	EventError       EventKind = "error"
)

// AllEvents lists every event kind in a stable order.
var AllEvents = []EventKind{
	EventCallStart,
	EventCallEnd,
	EventMessage,
	EventSpeechStart,
	EventSpeechEnd,
	EventError,
}

// Message types and transcript types carried by [EventMessage].
const (
	MessageTypeTranscript = "transcript"

	TranscriptPartial = "partial"
	TranscriptFinal   = "final"
)

// Message is the payload of an [EventMessage] event.
type Message struct {
	// Type is the message category; only "transcript" messages carry
	// utterances.
	Type string `json:"type"`

	// TranscriptType is "partial" for interim hypotheses and "final" once the
	// engine has committed the utterance.
	TranscriptType string `json:"transcriptType,omitempty"`

	// Role is the engine's speaker role: "user", "assistant" or "system".
	Role string `json:"role,omitempty"`

	// Transcript is the utterance text.
	Transcript string `json:"transcript,omitempty"`
}

// IsFinalTranscript reports whether m is a committed utterance.
func (m Message) IsFinalTranscript() bool {
	return m.Type == MessageTypeTranscript && m.TranscriptType == TranscriptFinal
}

// Event is a single notification from the engine. Message is set for
// [EventMessage]; Err is set for [EventError].
type Event struct {
	Kind    EventKind
	Message Message
	Err     error
}

// Handler receives events. Handlers run on the engine's delivery goroutine
// and must not block for long.
type Handler func(Event)

// Engine starts and stops calls and publishes their events.
type Engine interface {
	// Start places a call against target (an assistant or workflow
	// identifier) with the given template variables.
	Start(ctx context.Context, target string, variables map[string]string) error

	// Stop hangs up the current call. The engine emits [EventCallEnd] once
	// the call is torn down. Stop may wait for the delivery goroutine, so it
	// must not be called from inside a [Handler].
	Stop(ctx context.Context) error

	// On registers h for events of kind and returns the function that
	// removes exactly this registration. The returned function is safe to
	// call more than once.
	On(kind EventKind, h Handler) (unsubscribe func())
}
