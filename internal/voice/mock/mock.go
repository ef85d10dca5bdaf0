// Package mock provides an in-memory [voice.Engine] for unit tests.
//
// The mock records every Start and Stop call and lets the test inject events
// with [Engine.Emit] or the convenience helpers. It is safe for concurrent use.
//
// Example:
//
//	eng := &mock.Engine{}
//	ctrl := controller.New(eng, store, cfg)
//	_ = ctrl.BeginCall(ctx)
//	eng.CallStart()
//	eng.Say("user", "role: Backend Engineer")
//	eng.CallEnd()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/prepvoice/internal/voice"
)

// Compile-time interface assertion.
var _ voice.Engine = (*Engine)(nil)

// StartCall records the arguments of a single [Engine.Start] call.
type StartCall struct {
	Target    string
	Variables map[string]string
}

// Engine is a mock implementation of [voice.Engine].
type Engine struct {
	voice.Emitter

	mu sync.Mutex

	// StartError is returned by [Engine.Start].
	StartError error

	// StopError is returned by [Engine.Stop].
	StopError error

	// EmitCallEndOnStop makes Stop emit a call-end event, as real engines do.
	EmitCallEndOnStop bool

	// StartCalls records all Start invocations.
	StartCalls []StartCall

	// StopCalls counts Stop invocations.
	StopCalls int
}

// Start implements [voice.Engine].
func (e *Engine) Start(_ context.Context, target string, variables map[string]string) error {
	vars := make(map[string]string, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.StartCalls = append(e.StartCalls, StartCall{Target: target, Variables: vars})
	return e.StartError
}

// Stop implements [voice.Engine].
func (e *Engine) Stop(_ context.Context) error {
	e.mu.Lock()
	e.StopCalls++
	err := e.StopError
	emit := e.EmitCallEndOnStop
	e.mu.Unlock()

	if emit {
		e.Emit(voice.Event{Kind: voice.EventCallEnd})
	}
	return err
}

// Starts returns a copy of the recorded Start calls.
func (e *Engine) Starts() []StartCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StartCall, len(e.StartCalls))
	copy(out, e.StartCalls)
	return out
}

// Stops returns the number of Stop calls so far.
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StopCalls
}

// CallStart emits a call-start event.
func (e *Engine) CallStart() { e.Emit(voice.Event{Kind: voice.EventCallStart}) }

// CallEnd emits a call-end event.
func (e *Engine) CallEnd() { e.Emit(voice.Event{Kind: voice.EventCallEnd}) }

// Say emits a final transcript message for role.
func (e *Engine) Say(role, text string) {
	e.Emit(voice.Event{Kind: voice.EventMessage, Message: voice.Message{
		Type:           voice.MessageTypeTranscript,
		TranscriptType: voice.TranscriptFinal,
		Role:           role,
		Transcript:     text,
	}})
}

// Partial emits an interim transcript message for role.
func (e *Engine) Partial(role, text string) {
	e.Emit(voice.Event{Kind: voice.EventMessage, Message: voice.Message{
		Type:           voice.MessageTypeTranscript,
		TranscriptType: voice.TranscriptPartial,
		Role:           role,
		Transcript:     text,
	}})
}

// Fail emits an error event.
func (e *Engine) Fail(err error) { e.Emit(voice.Event{Kind: voice.EventError, Err: err}) }
