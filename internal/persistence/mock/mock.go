// Package mock provides an in-memory [persistence.Service] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/persistence"
)

// Compile-time interface assertion.
var _ persistence.Service = (*Service)(nil)

// Service records every call and answers with the configured results.
// Zero value answers success with empty ids.
type Service struct {
	mu sync.Mutex

	// FeedbackResult is returned by CreateFeedback. When nil the call
	// succeeds with FeedbackID "feedback-1".
	FeedbackResult *persistence.FeedbackResult
	FeedbackErr    error

	// InterviewResult is returned by CreateInterview. When nil the call
	// succeeds with InterviewID "interview-1".
	InterviewResult *persistence.InterviewResult
	InterviewErr    error

	// Block, when non-nil, is received from before answering so tests can
	// hold a call in flight.
	Block chan struct{}

	feedbackCalls  []interview.FeedbackRequest
	interviewCalls []interview.Spec
	called         chan struct{}
}

// Called returns a channel that receives once per call, after the call was
// recorded.
func (s *Service) Called() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	return s.called
}

func (s *Service) initLocked() {
	if s.called == nil {
		s.called = make(chan struct{}, 64)
	}
}

func (s *Service) notify() {
	s.mu.Lock()
	s.initLocked()
	ch := s.called
	s.mu.Unlock()
	select {
	case ch <- struct{}{}:
	default:
	}
}

// CreateFeedback implements [persistence.Service].
func (s *Service) CreateFeedback(ctx context.Context, req interview.FeedbackRequest) (persistence.FeedbackResult, error) {
	s.mu.Lock()
	s.feedbackCalls = append(s.feedbackCalls, req)
	res, err, block := s.FeedbackResult, s.FeedbackErr, s.Block
	s.mu.Unlock()
	defer s.notify()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return persistence.FeedbackResult{}, ctx.Err()
		}
	}
	if err != nil {
		return persistence.FeedbackResult{}, err
	}
	if res == nil {
		return persistence.FeedbackResult{Success: true, FeedbackID: "feedback-1"}, nil
	}
	return *res, nil
}

// CreateInterview implements [persistence.Service].
func (s *Service) CreateInterview(ctx context.Context, spec interview.Spec) (persistence.InterviewResult, error) {
	s.mu.Lock()
	s.interviewCalls = append(s.interviewCalls, spec)
	res, err, block := s.InterviewResult, s.InterviewErr, s.Block
	s.mu.Unlock()
	defer s.notify()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return persistence.InterviewResult{}, ctx.Err()
		}
	}
	if err != nil {
		return persistence.InterviewResult{}, err
	}
	if res == nil {
		return persistence.InterviewResult{Success: true, InterviewID: "interview-1"}, nil
	}
	return *res, nil
}

// FeedbackCalls returns a copy of the recorded CreateFeedback requests.
func (s *Service) FeedbackCalls() []interview.FeedbackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interview.FeedbackRequest, len(s.feedbackCalls))
	copy(out, s.feedbackCalls)
	return out
}

// InterviewCalls returns a copy of the recorded CreateInterview specs.
func (s *Service) InterviewCalls() []interview.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interview.Spec, len(s.interviewCalls))
	copy(out, s.interviewCalls)
	return out
}
