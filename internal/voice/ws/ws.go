// Package ws implements [voice.Engine] over a JSON WebSocket protocol.
//
// One WebSocket connection carries one call. [Engine.Start] dials the
// endpoint and sends
//
//	{"type":"start","target":"<assistant or workflow id>","variableValues":{...}}
//
// and [Engine.Stop] sends {"type":"stop"}. The server answers with frames whose
// "type" is one of the [voice.EventKind] names:
//
//	{"type":"call-start"}
//	{"type":"message","message":{"type":"transcript","transcriptType":"final","role":"user","transcript":"..."}}
//	{"type":"speech-start"} / {"type":"speech-end"}
//	{"type":"error","error":{"message":"..."}}
//	{"type":"call-end"}
//
// Frames are decoded and emitted on a single receive goroutine, so handlers
// see events in wire order. A call-end frame ends the call and the engine
// closes the connection itself. When the connection drops without a call-end
// frame, the engine emits an error event followed by a synthetic call-end so
// that the session can still finish.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/prepvoice/internal/voice"
)

// Compile-time interface assertion.
var _ voice.Engine = (*Engine)(nil)

const defaultStopGrace = 5 * time.Second

// Option configures an [Engine].
type Option func(*Engine)

// WithAPIKey sends key as a Bearer token when dialling.
func WithAPIKey(key string) Option {
	return func(e *Engine) { e.apiKey = key }
}

// WithStopGrace bounds how long [Engine.Stop] waits for the server to close
// the call before the connection is torn down locally. Default: 5s.
func WithStopGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stopGrace = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// Engine is a WebSocket-backed voice engine. It is safe for concurrent use;
// at most one call is in progress at a time.
type Engine struct {
	voice.Emitter

	url        string
	apiKey     string
	stopGrace  time.Duration
	httpClient *http.Client

	mu   sync.Mutex
	call *call
}

// call is the state of one connection.
type call struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	stopping bool
}

// New returns an Engine that dials url for every call.
func New(url string, opts ...Option) *Engine {
	e := &Engine{
		url:       url,
		stopGrace: defaultStopGrace,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ── Wire format ──────────────────────────────────────────────────────────────

type startFrame struct {
	Type           string            `json:"type"`
	Target         string            `json:"target"`
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

type frameError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type serverFrame struct {
	Type    string         `json:"type"`
	Message *voice.Message `json:"message,omitempty"`
	Error   *frameError    `json:"error,omitempty"`
}

// ── Commands ─────────────────────────────────────────────────────────────────

// Start implements [voice.Engine]. It fails if a call is already running.
func (e *Engine) Start(ctx context.Context, target string, variables map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.call != nil {
		return errors.New("voice/ws: call already in progress")
	}

	var header http.Header
	if e.apiKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + e.apiKey}}
	}
	conn, _, err := websocket.Dial(ctx, e.url, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: e.httpClient,
	})
	if err != nil {
		return fmt.Errorf("voice/ws: dial: %w", err)
	}

	callCtx, cancel := context.WithCancel(context.Background())
	c := &call{
		conn:   conn,
		ctx:    callCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := writeJSON(ctx, conn, startFrame{Type: "start", Target: target, VariableValues: variables}); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "start failed")
		return fmt.Errorf("voice/ws: send start: %w", err)
	}

	e.call = c
	go e.receiveLoop(c)

	slog.Debug("voice call dialled", "url", e.url, "target", target)
	return nil
}

// Stop implements [voice.Engine]. It asks the server to hang up and waits
// up to the stop grace period (or ctx) for the connection to wind down.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	c := e.call
	e.mu.Unlock()

	if c == nil {
		return voice.ErrNotConnected
	}

	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()

	writeErr := writeJSON(ctx, c.conn, map[string]string{"type": "stop"})

	timer := time.NewTimer(e.stopGrace)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.conn.Close(websocket.StatusNormalClosure, "stopped")
		c.cancel()
		<-c.done
	case <-ctx.Done():
		c.conn.Close(websocket.StatusNormalClosure, "stopped")
		c.cancel()
		<-c.done
	}

	if writeErr != nil {
		return fmt.Errorf("voice/ws: send stop: %w", writeErr)
	}
	return nil
}

// Close tears down any running call without waiting for the server. It is
// safe to call multiple times.
func (e *Engine) Close() error {
	e.mu.Lock()
	c := e.call
	e.mu.Unlock()

	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}

// ── Receive loop ─────────────────────────────────────────────────────────────

// receiveLoop owns c: it emits events until the connection ends or the
// server reports call-end, then releases the connection and clears e.call.
func (e *Engine) receiveLoop(c *call) {
	ended := false
	defer func() {
		c.conn.Close(websocket.StatusNormalClosure, "call ended")
		c.cancel()
		e.release(c)

		if !ended {
			e.Emit(voice.Event{Kind: voice.EventCallEnd})
		}
		close(c.done)
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			stopping := c.stopping
			c.mu.Unlock()

			if !stopping && !ended && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				e.Emit(voice.Event{Kind: voice.EventError, Err: fmt.Errorf("voice/ws: connection lost: %w", err)})
			}
			return
		}

		var f serverFrame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("voice/ws: dropping undecodable frame", "err", err)
			continue
		}

		switch kind := voice.EventKind(f.Type); kind {
		case voice.EventCallStart, voice.EventSpeechStart, voice.EventSpeechEnd:
			e.Emit(voice.Event{Kind: kind})
		case voice.EventCallEnd:
			// Released before emitting: the server may keep the socket open.
			ended = true
			e.release(c)
			e.Emit(voice.Event{Kind: kind})
			return
		case voice.EventMessage:
			if f.Message == nil {
				continue
			}
			e.Emit(voice.Event{Kind: kind, Message: *f.Message})
		case voice.EventError:
			msg := "unknown error"
			if f.Error != nil && f.Error.Message != "" {
				msg = f.Error.Message
			}
			e.Emit(voice.Event{Kind: kind, Err: fmt.Errorf("voice/ws: %s", msg)})
		default:
			slog.Debug("voice/ws: ignoring frame", "type", f.Type)
		}
	}
}

// release clears e.call if it still refers to c.
func (e *Engine) release(c *call) {
	e.mu.Lock()
	if e.call == c {
		e.call = nil
	}
	e.mu.Unlock()
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
