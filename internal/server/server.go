// Package server exposes the session controller over HTTP.
//
// Routes:
//
//   - GET  /healthz        liveness probe; always 200.
//   - GET  /readyz         readiness probe; 200 only when every [Checker] passes.
//   - GET  /session        current state, transcript and last navigation.
//   - POST /session/begin  begins a call.
//   - POST /session/end    ends the current call.
//   - GET  /metrics        Prometheus exposition.
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/prepvoice/internal/controller"
	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/observe"
	"github.com/MrWong99/prepvoice/internal/session"
)

// Session is the part of the controller the server drives.
type Session interface {
	BeginCall(ctx context.Context) error
	EndCall(ctx context.Context) error
	Snapshot() session.Snapshot
	Transcript() []interview.TranscriptEntry
	LastNavigation() (controller.Navigation, bool)
}

var _ Session = (*controller.Controller)(nil)

// sessionView is the body of GET /session.
type sessionView struct {
	session.Snapshot
	Transcript []interview.TranscriptEntry `json:"transcript"`
	Navigation *controller.Navigation      `json:"navigation,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Option configures a [Server].
type Option func(*Server)

// WithCheckers sets the readiness checks evaluated by /readyz.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithMetrics records request metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithTLS serves HTTPS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithShutdownTimeout bounds graceful shutdown. Default: 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server is the control-plane HTTP server.
type Server struct {
	sess            Session
	checkers        []Checker
	metrics         *observe.Metrics
	metricsHandler  http.Handler
	certFile        string
	keyFile         string
	shutdownTimeout time.Duration
}

// New creates a Server for sess.
func New(sess Session, opts ...Option) *Server {
	s := &Server{
		sess:            sess,
		shutdownTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("GET /readyz", readyz(s.checkers))
	mux.HandleFunc("GET /session", s.getSession)
	mux.HandleFunc("POST /session/begin", s.beginCall)
	mux.HandleFunc("POST /session/end", s.endCall)
	mux.Handle("GET /metrics", s.metricsHandler)
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certFile != "" {
			err = srv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("control server listening", "addr", addr, "tls", s.certFile != "")

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	view := sessionView{
		Snapshot:   s.sess.Snapshot(),
		Transcript: s.sess.Transcript(),
	}
	if view.Transcript == nil {
		view.Transcript = []interview.TranscriptEntry{}
	}
	if nav, ok := s.sess.LastNavigation(); ok {
		view.Navigation = &nav
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) beginCall(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.BeginCall(r.Context()); err != nil {
		s.commandError(w, r, "begin call", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sess.Snapshot())
}

func (s *Server) endCall(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.EndCall(r.Context()); err != nil {
		s.commandError(w, r, "end call", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sess.Snapshot())
}

func (s *Server) commandError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, controller.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	observe.Logger(r.Context()).Warn("session command failed", "op", op, "status", status, "err", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}
