package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// Compile-time interface check.
var _ Service = (*Failover)(nil)

// BreakerConfig tunes the circuit breaker placed in front of each backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long an open breaker rejects calls before letting
	// a single probe through. Default: 30s.
	ResetTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

// BreakerState is the mode of a backend's circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is a consecutive-failure circuit breaker. An open breaker admits
// one probe after the reset timeout; the probe's outcome closes or re-opens
// it.
type breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// allow reports whether a call may proceed and whether it is the half-open
// probe.
func (b *breaker) allow() (ok, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, false
		}
		b.state = BreakerHalfOpen
		slog.Info("persistence breaker half-open", "backend", b.name)
		fallthrough
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false, false
		}
		b.probeInFlight = true
		return true, true
	default:
		return true, false
	}
}

func (b *breaker) record(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeInFlight = false
	}
	if err == nil {
		if b.state != BreakerClosed {
			slog.Info("persistence breaker closed", "backend", b.name)
		}
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if probe || b.failures >= b.cfg.MaxFailures {
		if b.state != BreakerOpen {
			slog.Warn("persistence breaker opened",
				"backend", b.name,
				"consecutive_failures", b.failures)
		}
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

type backend struct {
	name    string
	svc     Service
	breaker *breaker
}

// FailoverOption configures a [Failover].
type FailoverOption func(*Failover)

// WithBreaker sets the breaker configuration used for backends added after
// this option is applied.
func WithBreaker(cfg BreakerConfig) FailoverOption {
	return func(f *Failover) { f.cfg = cfg.withDefaults() }
}

// WithFailoverClock sets the time source used by the breakers.
func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(f *Failover) {
		if now != nil {
			f.now = now
		}
	}
}

// Failover tries an ordered list of backends until one accepts the request.
// A backend is skipped on an error or an unsuccessful result, but only errors
// count against its breaker. When no backend succeeded and at least one
// answered, the last rejection is returned without an error.
//
// Failover is safe for concurrent use.
type Failover struct {
	cfg      BreakerConfig
	now      func() time.Time
	backends []backend
}

// NewFailover creates a Failover with primary as its first backend.
func NewFailover(primaryName string, primary Service, opts ...FailoverOption) *Failover {
	f := &Failover{
		cfg: BreakerConfig{}.withDefaults(),
		now: time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	f.Add(primaryName, primary)
	return f
}

// Add appends a fallback backend. It must not be called concurrently with
// requests.
func (f *Failover) Add(name string, svc Service) {
	f.backends = append(f.backends, backend{
		name: name,
		svc:  svc,
		breaker: &breaker{
			name: name,
			cfg:  f.cfg,
			now:  f.now,
		},
	})
}

// BreakerStates returns the breaker state of every backend, keyed by name.
func (f *Failover) BreakerStates() map[string]BreakerState {
	out := make(map[string]BreakerState, len(f.backends))
	for _, b := range f.backends {
		out[b.name] = b.breaker.current()
	}
	return out
}

// CreateFeedback implements [Service].
func (f *Failover) CreateFeedback(ctx context.Context, req interview.FeedbackRequest) (FeedbackResult, error) {
	return run(ctx, f, "create_feedback", func(svc Service) (FeedbackResult, bool, error) {
		res, err := svc.CreateFeedback(ctx, req)
		return res, res.Success, err
	})
}

// CreateInterview implements [Service].
func (f *Failover) CreateInterview(ctx context.Context, spec interview.Spec) (InterviewResult, error) {
	return run(ctx, f, "create_interview", func(svc Service) (InterviewResult, bool, error) {
		res, err := svc.CreateInterview(ctx, spec)
		return res, res.Success, err
	})
}

// run is a package-level function because methods cannot take type
// parameters.
func run[R any](ctx context.Context, f *Failover, op string, call func(Service) (R, bool, error)) (R, error) {
	var (
		lastErr      error
		lastRejected R
		rejected     bool
		zero         R
	)
	for i := range f.backends {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("persistence: %s: %w", op, err)
		}

		b := &f.backends[i]
		ok, probe := b.breaker.allow()
		if !ok {
			slog.Debug("skipping persistence backend", "backend", b.name, "op", op)
			lastErr = fmt.Errorf("%w: %s", ErrBackendOpen, b.name)
			continue
		}

		res, success, err := call(b.svc)
		switch {
		case err != nil:
			b.breaker.record(err, probe)
			lastErr = fmt.Errorf("%s: %w", b.name, err)
			slog.Warn("persistence backend failed, trying next",
				"backend", b.name, "op", op, "err", err)
		case !success:
			// A rejection proves the backend is reachable.
			b.breaker.record(nil, probe)
			lastRejected, rejected = res, true
			slog.Warn("persistence backend rejected request, trying next",
				"backend", b.name, "op", op)
		default:
			b.breaker.record(nil, probe)
			return res, nil
		}
	}

	if rejected {
		return lastRejected, nil
	}
	return zero, fmt.Errorf("%w: %s: %w", ErrAllBackendsFailed, op, lastErr)
}
