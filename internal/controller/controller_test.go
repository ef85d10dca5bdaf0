package controller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/prepvoice/internal/controller"
	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/observe"
	"github.com/MrWong99/prepvoice/internal/persistence"
	pmock "github.com/MrWong99/prepvoice/internal/persistence/mock"
	"github.com/MrWong99/prepvoice/internal/session"
	"github.com/MrWong99/prepvoice/internal/transcript"
	"github.com/MrWong99/prepvoice/internal/voice"
	vmock "github.com/MrWong99/prepvoice/internal/voice/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type fixture struct {
	engine *vmock.Engine
	store  *pmock.Service
	ctrl   *controller.Controller
	reader *sdkmetric.ManualReader
}

func generateConfig() controller.Config {
	return controller.Config{
		Mode:       interview.ModeGenerate,
		Candidate:  interview.Candidate{ID: "u1", Name: "Ada"},
		WorkflowID: "wf-1",
	}
}

func interviewConfig() controller.Config {
	return controller.Config{
		Mode:          interview.ModeInterview,
		Candidate:     interview.Candidate{ID: "u1", Name: "Ada"},
		InterviewID:   "iv-9",
		Questions:     []string{"What is a goroutine?", "Explain channels."},
		InterviewerID: "asst-1",
	}
}

func newFixture(t *testing.T, cfg controller.Config, opts ...controller.Option) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{engine: &vmock.Engine{}, store: &pmock.Service{}, reader: reader}
	opts = append([]controller.Option{controller.WithMetrics(m)}, opts...)
	f.ctrl, err = controller.New(f.engine, f.store, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = f.ctrl.Close() })
	return f
}

func (f *fixture) begin(t *testing.T) {
	t.Helper()
	if err := f.ctrl.BeginCall(context.Background()); err != nil {
		t.Fatalf("BeginCall: %v", err)
	}
}

func waitNav(t *testing.T, c *controller.Controller) controller.Navigation {
	t.Helper()
	select {
	case nav := <-c.Navigations():
		return nav
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation within timeout")
		return controller.Navigation{}
	}
}

func expectNoNav(t *testing.T, c *controller.Controller) {
	t.Helper()
	select {
	case nav := <-c.Navigations():
		t.Fatalf("unexpected navigation %+v", nav)
	case <-time.After(100 * time.Millisecond):
	}
}

func outcomeCount(t *testing.T, reader *sdkmetric.ManualReader, outcome string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "prepvoice.sessions.outcomes" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				if v, ok := dp.Attributes.Value("outcome"); ok && v.AsString() == outcome {
					return dp.Value
				}
			}
		}
	}
	return 0
}

// ── BeginCall ────────────────────────────────────────────────────────────────

func TestBeginCall_GenerateVariables(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)

	starts := f.engine.Starts()
	if len(starts) != 1 {
		t.Fatalf("Start calls = %d, want 1", len(starts))
	}
	if starts[0].Target != "wf-1" {
		t.Errorf("target = %q, want wf-1", starts[0].Target)
	}
	vars := starts[0].Variables
	if vars[controller.VarUserName] != "Ada" || vars[controller.VarUserID] != "u1" {
		t.Errorf("variables = %v", vars)
	}
	if got := f.ctrl.State(); got != session.StateConnecting {
		t.Errorf("state = %s, want connecting", got)
	}
}

func TestBeginCall_InterviewQuestions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		questions []string
		want      string
	}{
		{"two questions", []string{"What is a goroutine?", "Explain channels."}, "- What is a goroutine?\n- Explain channels."},
		{"no questions", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := interviewConfig()
			cfg.Questions = tc.questions
			f := newFixture(t, cfg)
			f.begin(t)

			start := f.engine.Starts()[0]
			if start.Target != "asst-1" {
				t.Errorf("target = %q, want asst-1", start.Target)
			}
			if got := start.Variables[controller.VarQuestions]; got != tc.want {
				t.Errorf("questions = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBeginCall_RejectedWhileInCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	f.engine.CallStart()

	err := f.ctrl.BeginCall(context.Background())
	if !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("BeginCall err = %v, want ErrInvalidTransition", err)
	}
	if len(f.engine.Starts()) != 1 {
		t.Error("engine should not be started twice")
	}
}

func TestBeginCall_StartFailureReturnsToIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.engine.StartError = errors.New("dial refused")

	if err := f.ctrl.BeginCall(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := f.ctrl.State(); got != session.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	expectNoNav(t, f.ctrl)

	f.engine.StartError = nil
	f.begin(t)
	if got := f.ctrl.State(); got != session.StateConnecting {
		t.Errorf("state after retry = %s, want connecting", got)
	}
}

func TestBeginCall_RetryAfterFinished(t *testing.T) {
	t.Parallel()
	f := newFixture(t, interviewConfig())
	f.begin(t)
	f.engine.CallStart()
	f.engine.Say("user", "first attempt")
	f.engine.CallEnd()
	waitNav(t, f.ctrl)

	f.begin(t)
	if got := f.ctrl.State(); got != session.StateConnecting {
		t.Fatalf("state = %s, want connecting", got)
	}
	if n := len(f.ctrl.Transcript()); n != 0 {
		t.Errorf("retry transcript has %d entries, want 0", n)
	}
	if _, ok := f.ctrl.LastNavigation(); ok {
		t.Error("last navigation should reset on a new call")
	}

	f.engine.CallStart()
	f.engine.Say("user", "second attempt")
	f.engine.CallEnd()
	waitNav(t, f.ctrl)

	calls := f.store.FeedbackCalls()
	if len(calls) != 2 {
		t.Fatalf("feedback calls = %d, want 2", len(calls))
	}
	if got := calls[1].Transcript; len(got) != 1 || got[0].Text != "second attempt" {
		t.Errorf("second transcript = %+v", got)
	}
}

// ── Event handling ───────────────────────────────────────────────────────────

func TestEvents_Observables(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	f.engine.CallStart()
	if got := f.ctrl.State(); got != session.StateActive {
		t.Fatalf("state = %s, want active", got)
	}

	f.engine.Emit(voice.Event{Kind: voice.EventSpeechStart})
	if !f.ctrl.IsSpeaking() {
		t.Error("expected speaking after speech-start")
	}
	f.engine.Say("assistant", "What role are you preparing for?")
	f.engine.Partial("user", "I am prep")
	f.engine.Say("user", "role: Platform Engineer")
	f.engine.Emit(voice.Event{Kind: voice.EventSpeechEnd})

	if f.ctrl.IsSpeaking() {
		t.Error("expected not speaking after speech-end")
	}
	if got := f.ctrl.LastMessage(); got != "role: Platform Engineer" {
		t.Errorf("last message = %q", got)
	}
	entries := f.ctrl.Transcript()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (partial ignored)", len(entries))
	}
	if entries[0].Speaker != interview.SpeakerInterviewer || entries[1].Speaker != interview.SpeakerCandidate {
		t.Errorf("speakers = %s, %s", entries[0].Speaker, entries[1].Speaker)
	}

	snap := f.ctrl.Snapshot()
	if snap.Mode != interview.ModeGenerate || snap.State != session.StateActive || snap.Entries != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEvents_VoiceErrorDoesNotChangeState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	f.engine.CallStart()
	f.engine.Fail(errors.New("jitter"))

	if got := f.ctrl.State(); got != session.StateActive {
		t.Errorf("state = %s, want active", got)
	}
	expectNoNav(t, f.ctrl)
}

func TestEvents_NothingAfterFinished(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	f.engine.CallStart()
	f.engine.Say("user", "hello")
	f.engine.CallEnd()
	waitNav(t, f.ctrl)

	f.engine.CallStart()
	f.engine.Say("user", "late line")
	if got := f.ctrl.State(); got != session.StateFinished {
		t.Errorf("state = %s, want finished", got)
	}
	if n := len(f.ctrl.Transcript()); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

// ── Dispatch ─────────────────────────────────────────────────────────────────

func TestDispatch_GeneratePersistsExtractedSpec(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	f.engine.CallStart()
	f.engine.Say("user", "role: SRE, level: Senior")
	f.engine.Say("user", "tech stack: Go, Kubernetes")
	f.engine.CallEnd()

	nav := waitNav(t, f.ctrl)
	if nav.View != controller.ViewHome || nav.Path != "/" || nav.Outcome != observe.OutcomePersisted {
		t.Errorf("navigation = %+v", nav)
	}
	calls := f.store.InterviewCalls()
	if len(calls) != 1 {
		t.Fatalf("interview calls = %d, want 1", len(calls))
	}
	spec := calls[0]
	if spec.Role != "SRE" || spec.Level != "Senior" || spec.CandidateID != "u1" {
		t.Errorf("spec = %+v", spec)
	}
	if len(spec.TechStack) != 2 || spec.TechStack[0] != "Go" {
		t.Errorf("tech stack = %v", spec.TechStack)
	}
	if got := outcomeCount(t, f.reader, observe.OutcomePersisted); got != 1 {
		t.Errorf("persisted outcomes = %d, want 1", got)
	}
}

func TestDispatch_GeneratePersistenceOutcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		result  *persistence.InterviewResult
		err     error
		outcome string
	}{
		{"success", nil, nil, observe.OutcomePersisted},
		{"rejected", &persistence.InterviewResult{Success: false, Error: "quota exceeded"}, nil, observe.OutcomeRejected},
		{"error", nil, errors.New("connection refused"), observe.OutcomeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, generateConfig())
			f.store.InterviewResult = tc.result
			f.store.InterviewErr = tc.err

			f.begin(t)
			f.engine.CallStart()
			f.engine.Say("user", "role: SRE")
			f.engine.CallEnd()

			nav := waitNav(t, f.ctrl)
			if nav.View != controller.ViewHome || nav.Path != "/" || nav.Outcome != tc.outcome {
				t.Errorf("navigation = %+v, want home / %s", nav, tc.outcome)
			}
			if n := len(f.store.InterviewCalls()); n != 1 {
				t.Errorf("interview calls = %d, want 1", n)
			}
			if got := outcomeCount(t, f.reader, tc.outcome); got != 1 {
				t.Errorf("%s outcomes = %d, want 1", tc.outcome, got)
			}
		})
	}
}

func TestDispatch_GenerateEmptyTranscriptSkips(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	f.engine.CallStart()
	f.engine.CallEnd()

	nav := waitNav(t, f.ctrl)
	if nav.View != controller.ViewHome || nav.Outcome != observe.OutcomeSkipped {
		t.Errorf("navigation = %+v", nav)
	}
	if n := len(f.store.InterviewCalls()); n != 0 {
		t.Errorf("interview calls = %d, want 0", n)
	}
}

func TestDispatch_InterviewFeedback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		result   *persistence.FeedbackResult
		err      error
		wantView controller.View
		wantPath string
		outcome  string
	}{
		{"success", nil, nil, controller.ViewFeedback, "/interview/iv-9/feedback", observe.OutcomePersisted},
		{"rejected", &persistence.FeedbackResult{Success: false}, nil, controller.ViewHome, "/", observe.OutcomeRejected},
		{"success without id", &persistence.FeedbackResult{Success: true}, nil, controller.ViewHome, "/", observe.OutcomeRejected},
		{"error", nil, errors.New("503"), controller.ViewHome, "/", observe.OutcomeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, interviewConfig())
			f.store.FeedbackResult = tc.result
			f.store.FeedbackErr = tc.err

			f.begin(t)
			f.engine.CallStart()
			f.engine.Say("assistant", "What is a goroutine?")
			f.engine.Say("user", "A lightweight thread.")
			f.engine.CallEnd()

			nav := waitNav(t, f.ctrl)
			if nav.View != tc.wantView || nav.Path != tc.wantPath || nav.Outcome != tc.outcome {
				t.Errorf("navigation = %+v", nav)
			}
			calls := f.store.FeedbackCalls()
			if len(calls) != 1 {
				t.Fatalf("feedback calls = %d, want 1", len(calls))
			}
			req := calls[0]
			if req.InterviewID != "iv-9" || req.CandidateID != "u1" || len(req.Transcript) != 2 {
				t.Errorf("feedback request = %+v", req)
			}
			if got, ok := f.ctrl.LastNavigation(); !ok || got != nav {
				t.Errorf("LastNavigation = %+v, %v", got, ok)
			}
		})
	}
}

func TestDispatch_InterviewEmptyTranscriptStillRequestsFeedback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, interviewConfig())
	f.begin(t)
	f.engine.CallStart()
	f.engine.CallEnd()
	waitNav(t, f.ctrl)

	if n := len(f.store.FeedbackCalls()); n != 1 {
		t.Fatalf("feedback calls = %d, want 1", n)
	}
}

func TestDispatch_NilStoreGoesHome(t *testing.T) {
	t.Parallel()
	eng := &vmock.Engine{}
	ctrl, err := controller.New(eng, nil, interviewConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctrl.Close()

	if err := ctrl.BeginCall(context.Background()); err != nil {
		t.Fatalf("BeginCall: %v", err)
	}
	eng.CallEnd()
	nav := waitNav(t, ctrl)
	if nav.View != controller.ViewHome || nav.Outcome != observe.OutcomeSkipped {
		t.Errorf("navigation = %+v", nav)
	}
}

func TestDispatch_OnNavigateCallback(t *testing.T) {
	t.Parallel()
	got := make(chan controller.Navigation, 1)
	f := newFixture(t, interviewConfig(), controller.OnNavigate(func(n controller.Navigation) { got <- n }))
	f.begin(t)
	f.engine.CallEnd()

	select {
	case nav := <-got:
		if nav.View != controller.ViewFeedback {
			t.Errorf("navigation = %+v", nav)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnNavigate not called")
	}
}

func TestSetExtractor_AppliesToNextCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.ctrl.SetExtractor(transcript.New(transcript.WithDefaults(transcript.Defaults{Role: "Data Engineer"})))

	f.begin(t)
	f.engine.CallStart()
	f.engine.Say("user", "hello there")
	f.engine.CallEnd()
	waitNav(t, f.ctrl)

	if got := f.store.InterviewCalls()[0].Role; got != "Data Engineer" {
		t.Errorf("role = %q, want configured default", got)
	}
}

// ── EndCall ──────────────────────────────────────────────────────────────────

func TestEndCall_IdleIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	if err := f.ctrl.EndCall(context.Background()); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if f.engine.Stops() != 0 {
		t.Error("Stop should not be sent without a call")
	}
	if got := f.ctrl.State(); got != session.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestEndCall_DispatchesExactlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, interviewConfig())
	f.engine.EmitCallEndOnStop = true
	f.begin(t)
	f.engine.CallStart()
	f.engine.Say("user", "done")

	if err := f.ctrl.EndCall(context.Background()); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	f.engine.CallEnd()
	if err := f.ctrl.EndCall(context.Background()); err != nil {
		t.Fatalf("second EndCall: %v", err)
	}

	waitNav(t, f.ctrl)
	expectNoNav(t, f.ctrl)
	if n := len(f.store.FeedbackCalls()); n != 1 {
		t.Errorf("feedback calls = %d, want 1", n)
	}
	if n := f.engine.Stops(); n != 1 {
		t.Errorf("Stop calls = %d, want 1", n)
	}
	if got := f.ctrl.State(); got != session.StateFinished {
		t.Errorf("state = %s, want finished", got)
	}
}

func TestEndCall_FromConnecting(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.begin(t)
	if err := f.ctrl.EndCall(context.Background()); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	nav := waitNav(t, f.ctrl)
	if nav.Outcome != observe.OutcomeSkipped {
		t.Errorf("navigation = %+v", nav)
	}
}

func TestEndCall_StopErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	f.engine.StopError = voice.ErrNotConnected
	f.begin(t)
	if err := f.ctrl.EndCall(context.Background()); err != nil {
		t.Errorf("ErrNotConnected should be ignored, got %v", err)
	}

	g := newFixture(t, generateConfig())
	g.engine.StopError = errors.New("socket closed")
	g.begin(t)
	if err := g.ctrl.EndCall(context.Background()); err == nil {
		t.Error("expected stop error")
	}
	if got := g.ctrl.State(); got != session.StateFinished {
		t.Errorf("state = %s, want finished even when Stop fails", got)
	}
}

// ── Close ────────────────────────────────────────────────────────────────────

func TestClose_ReleasesSubscriptions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, generateConfig())
	if n := f.engine.HandlerCount(); n != len(voice.AllEvents) {
		t.Fatalf("handlers = %d, want %d", n, len(voice.AllEvents))
	}
	f.begin(t)

	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n := f.engine.HandlerCount(); n != 0 {
		t.Errorf("handlers after Close = %d, want 0", n)
	}
	if err := f.ctrl.BeginCall(context.Background()); !errors.Is(err, controller.ErrClosed) {
		t.Errorf("BeginCall after Close = %v, want ErrClosed", err)
	}
}

func TestClose_WaitsForDispatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, interviewConfig())
	f.store.Block = make(chan struct{})
	f.begin(t)
	f.engine.CallEnd()
	deadline := time.Now().Add(2 * time.Second)
	for len(f.store.FeedbackCalls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dispatch did not reach the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		_ = f.ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while dispatch was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(f.store.Block)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after dispatch finished")
	}
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	t.Parallel()
	_, err := controller.New(&vmock.Engine{}, nil, controller.Config{Mode: "rehearsal"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFormatQuestions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"  "}, ""},
		{[]string{"One?"}, "- One?"},
		{[]string{"One?", "", " Two? "}, "- One?\n- Two?"},
	}
	for _, tc := range tests {
		if got := controller.FormatQuestions(tc.in); got != tc.want {
			t.Errorf("FormatQuestions(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
