// Package controller drives one voice-interview session end to end.
//
// A [Controller] subscribes to every voice-engine event, feeds them to a
// [session.Machine], and exposes the two user commands ([Controller.BeginCall]
// and [Controller.EndCall]) plus read-only observables. When the call
// finishes, the machine's plan is executed on its own goroutine against the
// persistence service and the result is published as a [Navigation].
//
// Handlers and commands are serialised by one mutex. Engine commands are
// issued with the mutex released so an engine may deliver events while Start
// or Stop is still running.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/observe"
	"github.com/MrWong99/prepvoice/internal/persistence"
	"github.com/MrWong99/prepvoice/internal/session"
	"github.com/MrWong99/prepvoice/internal/transcript"
	"github.com/MrWong99/prepvoice/internal/voice"
)

// ErrClosed is returned by commands issued after [Controller.Close].
var ErrClosed = errors.New("controller: closed")

// View names a destination the UI should move to once a session is over.
type View string

const (
	// ViewFeedback shows the feedback for a completed interview.
	ViewFeedback View = "feedback"

	// ViewHome is the default destination, used for generate sessions and
	// every failure.
	ViewHome View = "home"
)

// HomePath is the path of [ViewHome].
const HomePath = "/"

// FeedbackPath returns the path of the feedback view for interviewID.
func FeedbackPath(interviewID string) string {
	return "/interview/" + interviewID + "/feedback"
}

// Navigation is the intent published after a session's end-of-call work.
type Navigation struct {
	View View   `json:"view"`
	Path string `json:"path"`

	// Outcome is one of the observe.Outcome* values.
	Outcome string `json:"outcome"`
}

// Config describes the session a Controller runs.
type Config struct {
	Mode      interview.Mode
	Candidate interview.Candidate

	// InterviewID, FeedbackID and Questions apply to interview sessions.
	InterviewID string
	FeedbackID  string
	Questions   []string

	// WorkflowID is the engine target for generate sessions; InterviewerID
	// for interview sessions.
	WorkflowID    string
	InterviewerID string
}

// Option configures a [Controller].
type Option func(*Controller)

// WithMetrics records session metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithExtractor sets the extractor used by generate sessions.
func WithExtractor(e *transcript.Extractor) Option {
	return func(c *Controller) { c.extractor = e }
}

// OnNavigate registers fn to be called with every navigation intent. fn runs
// on the dispatch goroutine.
func OnNavigate(fn func(Navigation)) Option {
	return func(c *Controller) { c.onNavigate = fn }
}

// WithDispatchTimeout bounds the persistence call made when a session ends.
// Default: 30s.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.dispatchTimeout = d
		}
	}
}

// Controller is safe for concurrent use.
type Controller struct {
	engine          voice.Engine
	store           persistence.Service
	cfg             Config
	metrics         *observe.Metrics
	onNavigate      func(Navigation)
	dispatchTimeout time.Duration

	mu        sync.Mutex
	machine   *session.Machine
	extractor *transcript.Extractor
	lastNav   *Navigation
	closed    bool
	unsubs    []func()

	navs      chan Navigation
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Controller in [session.StateIdle] and subscribes to every
// event of engine. store may be nil, in which case nothing is persisted and
// every session ends on the home view.
func New(engine voice.Engine, store persistence.Service, cfg Config, opts ...Option) (*Controller, error) {
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("controller: unknown mode %q", cfg.Mode)
	}
	c := &Controller{
		engine:          engine,
		store:           store,
		cfg:             cfg,
		dispatchTimeout: 30 * time.Second,
		navs:            make(chan Navigation, 4),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.extractor == nil {
		c.extractor = transcript.New()
	}

	m, err := c.newMachine()
	if err != nil {
		return nil, err
	}
	c.machine = m

	for _, kind := range voice.AllEvents {
		c.unsubs = append(c.unsubs, engine.On(kind, c.handle))
	}
	return c, nil
}

func (c *Controller) newMachine() (*session.Machine, error) {
	m, err := session.New(session.Config{
		Mode:        c.cfg.Mode,
		Candidate:   c.cfg.Candidate,
		InterviewID: c.cfg.InterviewID,
		FeedbackID:  c.cfg.FeedbackID,
		Extractor:   c.extractor,
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	return m, nil
}

// SetExtractor replaces the extractor. It takes effect for the next call.
func (c *Controller) SetExtractor(e *transcript.Extractor) {
	if e == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extractor = e
}

// BeginCall starts a call. It is allowed from Idle and from Finished, where a
// fresh session replaces the finished one. If the engine refuses the call the
// controller returns to Idle and nothing is dispatched.
func (c *Controller) BeginCall(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if st := c.machine.State(); st != session.StateIdle && st != session.StateFinished {
		c.mu.Unlock()
		return fmt.Errorf("controller: begin call: %w: call is %s", session.ErrInvalidTransition, st)
	}
	m, err := c.newMachine()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := m.Begin(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("controller: begin call: %w", err)
	}
	c.machine = m
	c.lastNav = nil
	c.mu.Unlock()

	c.metrics.RecordSessionStarted(ctx, string(c.cfg.Mode))
	target, vars := callTarget(c.cfg)
	slog.Info("beginning call", "mode", c.cfg.Mode, "target", target, "candidate_id", c.cfg.Candidate.ID)

	if err := c.engine.Start(ctx, target, vars); err != nil {
		c.mu.Lock()
		if c.machine == m {
			if idle, nerr := c.newMachine(); nerr == nil {
				c.machine = idle
			}
		}
		c.mu.Unlock()
		c.metrics.RecordSessionFinished(ctx)
		c.metrics.RecordSessionOutcome(ctx, string(c.cfg.Mode), observe.OutcomeFailed)
		return fmt.Errorf("controller: start call: %w", err)
	}
	return nil
}

// EndCall finishes the session and hangs up. It is a no-op when no call was
// begun or the session already finished.
func (c *Controller) EndCall(ctx context.Context) error {
	c.mu.Lock()
	m := c.machine
	st := m.State()
	if st == session.StateIdle || st == session.StateFinished {
		c.mu.Unlock()
		return nil
	}
	c.finishLocked(m)
	c.mu.Unlock()

	slog.Info("ending call", "mode", c.cfg.Mode, "state", st)
	if err := c.engine.Stop(ctx); err != nil && !errors.Is(err, voice.ErrNotConnected) {
		return fmt.Errorf("controller: stop call: %w", err)
	}
	return nil
}

// finishLocked finishes m and starts the dispatch when m yields a plan. It
// must be called with c.mu held.
func (c *Controller) finishLocked(m *session.Machine) {
	plan, ok := m.Finish()
	if !ok || c.closed {
		return
	}
	c.inflight.Add(1)
	go c.dispatch(m, plan)
}

// handle is registered for every engine event.
func (c *Controller) handle(ev voice.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	m := c.machine
	ctx := context.Background()

	switch ev.Kind {
	case voice.EventCallStart:
		if m.CallStarted() {
			slog.Info("call started", "mode", c.cfg.Mode)
		}
	case voice.EventCallEnd:
		slog.Info("call ended", "mode", c.cfg.Mode, "entries", len(m.Transcript()))
		c.finishLocked(m)
	case voice.EventMessage:
		if m.Append(ev.Message) {
			c.metrics.RecordTranscriptEntry(ctx, string(interview.SpeakerFromRole(ev.Message.Role)))
			slog.Debug("transcript entry", "role", ev.Message.Role, "text", ev.Message.Transcript)
		}
	case voice.EventSpeechStart:
		m.SetSpeaking(true)
	case voice.EventSpeechEnd:
		m.SetSpeaking(false)
	case voice.EventError:
		c.metrics.RecordVoiceError(ctx)
		slog.Warn("voice engine error", "mode", c.cfg.Mode, "state", m.State(), "err", ev.Err)
	}
}

// dispatch executes plan and publishes the resulting navigation.
func (c *Controller) dispatch(m *session.Machine, plan session.Plan) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.dispatchTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "controller.dispatch",
		trace.WithAttributes(
			attribute.String("session.mode", string(m.Mode())),
			attribute.String("session.plan", plan.Kind.String()),
		),
	)
	defer span.End()

	nav := c.execute(ctx, plan)
	span.SetAttributes(attribute.String("session.outcome", nav.Outcome))
	if nav.Outcome == observe.OutcomeFailed {
		span.SetStatus(codes.Error, "persistence failed")
	}

	c.metrics.RecordSessionFinished(ctx)
	c.metrics.RecordSessionOutcome(ctx, string(m.Mode()), nav.Outcome)
	observe.Logger(ctx).Info("session dispatched",
		"mode", m.Mode(),
		"plan", plan.Kind.String(),
		"outcome", nav.Outcome,
		"path", nav.Path,
	)
	c.publish(nav)
}

func (c *Controller) execute(ctx context.Context, plan session.Plan) Navigation {
	log := observe.Logger(ctx)
	home := func(outcome string) Navigation {
		return Navigation{View: ViewHome, Path: HomePath, Outcome: outcome}
	}

	if plan.Kind == session.PlanSkip {
		log.Info("nothing to persist", "reason", plan.Reason)
		return home(observe.OutcomeSkipped)
	}
	if c.store == nil {
		log.Warn("no persistence backend configured; session result dropped", "plan", plan.Kind.String())
		return home(observe.OutcomeSkipped)
	}

	switch plan.Kind {
	case session.PlanFeedback:
		start := time.Now()
		res, err := c.store.CreateFeedback(ctx, plan.Feedback)
		c.recordPersistence(ctx, "create_feedback", start, err)
		switch {
		case err != nil:
			log.Warn("create feedback failed", "interview_id", plan.Feedback.InterviewID, "err", err)
			return home(observe.OutcomeFailed)
		case !res.Success || res.FeedbackID == "":
			log.Warn("feedback rejected", "interview_id", plan.Feedback.InterviewID)
			return home(observe.OutcomeRejected)
		}
		log.Info("feedback created", "interview_id", plan.Feedback.InterviewID, "feedback_id", res.FeedbackID)
		return Navigation{View: ViewFeedback, Path: FeedbackPath(plan.Feedback.InterviewID), Outcome: observe.OutcomePersisted}

	case session.PlanCreateInterview:
		ext := plan.Extraction
		for _, f := range ext.Defaulted {
			c.metrics.RecordExtractionFallback(ctx, string(f))
		}
		for _, corr := range ext.Corrections {
			log.Debug("tech stack corrected", "original", corr.Original, "corrected", corr.Corrected, "confidence", corr.Confidence)
		}
		start := time.Now()
		res, err := c.store.CreateInterview(ctx, ext.Spec)
		c.recordPersistence(ctx, "create_interview", start, err)
		switch {
		case err != nil:
			log.Warn("create interview failed", "role", ext.Spec.Role, "err", err)
			return home(observe.OutcomeFailed)
		case !res.Success:
			log.Warn("interview rejected", "role", ext.Spec.Role, "reason", res.Error)
			return home(observe.OutcomeRejected)
		}
		log.Info("interview created",
			"interview_id", res.InterviewID,
			"role", ext.Spec.Role,
			"questions", len(ext.Spec.Questions),
			"defaulted", len(ext.Defaulted),
		)
		return home(observe.OutcomePersisted)
	}
	return home(observe.OutcomeSkipped)
}

func (c *Controller) recordPersistence(ctx context.Context, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordPersistence(ctx, op, status, time.Since(start).Seconds())
}

func (c *Controller) publish(nav Navigation) {
	c.mu.Lock()
	c.lastNav = &nav
	c.mu.Unlock()

	select {
	case c.navs <- nav:
	default:
		slog.Warn("navigation channel full; intent dropped", "path", nav.Path)
	}
	if c.onNavigate != nil {
		c.onNavigate(nav)
	}
}

// Navigations delivers every navigation intent. It is never closed.
func (c *Controller) Navigations() <-chan Navigation { return c.navs }

// LastNavigation returns the intent of the most recent finished session.
func (c *Controller) LastNavigation() (Navigation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastNav == nil {
		return Navigation{}, false
	}
	return *c.lastNav, true
}

// Mode returns the session mode.
func (c *Controller) Mode() interview.Mode { return c.cfg.Mode }

// State returns the call state of the current session.
func (c *Controller) State() session.CallState { return c.current().State() }

// IsSpeaking reports whether the interviewer agent is talking.
func (c *Controller) IsSpeaking() bool { return c.current().Speaking() }

// LastMessage returns the most recent final transcript line.
func (c *Controller) LastMessage() string { return c.current().LastMessage() }

// Transcript returns a copy of the current session's transcript.
func (c *Controller) Transcript() []interview.TranscriptEntry { return c.current().Transcript() }

// Snapshot returns the observables of the current session in one read.
func (c *Controller) Snapshot() session.Snapshot { return c.current().Snapshot() }

func (c *Controller) current() *session.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine
}

// Close removes every event subscription and waits for in-flight dispatches.
// It does not hang up an active call. Safe to call more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		unsubs := c.unsubs
		c.unsubs = nil
		c.mu.Unlock()

		for _, u := range unsubs {
			u()
		}
		c.inflight.Wait()
	})
	return nil
}
