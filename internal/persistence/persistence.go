// Package persistence defines the service that stores the outcome of a
// finished session, and the wire shapes shared by its backends.
//
// Two operations exist. Interview-mode sessions call
// [Service.CreateFeedback] with the full transcript; generate-mode sessions
// call [Service.CreateInterview] with the extracted spec. Backends live in
// sub-packages (httpapi, postgres, filestore); [Failover] chains several of
// them behind per-backend circuit breakers.
//
// A backend reports an application-level rejection through the Success field
// of the result and a transport or storage failure through the error. Callers
// treat both the same way.
package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// Sentinel errors.
var (
	// ErrAllBackendsFailed is returned by [Failover] when every backend
	// failed or was skipped.
	ErrAllBackendsFailed = errors.New("persistence: all backends failed")

	// ErrBackendOpen is returned for a backend whose circuit breaker is open.
	ErrBackendOpen = errors.New("persistence: backend circuit open")
)

// FeedbackResult is the outcome of [Service.CreateFeedback].
type FeedbackResult struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId,omitempty"`
}

// InterviewResult is the outcome of [Service.CreateInterview].
type InterviewResult struct {
	Success     bool   `json:"success"`
	InterviewID string `json:"interviewId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Service stores session outcomes. Implementations must be safe for
// concurrent use.
type Service interface {
	CreateFeedback(ctx context.Context, req interview.FeedbackRequest) (FeedbackResult, error)
	CreateInterview(ctx context.Context, spec interview.Spec) (InterviewResult, error)
}

// InterviewRequest is the wire subset of a spec sent to create an interview.
// The tech stack is comma-joined and questions are reduced to their count;
// the receiving side generates its own questions.
type InterviewRequest struct {
	Role      string `json:"role"`
	Level     string `json:"level"`
	Type      string `json:"type"`
	TechStack string `json:"techstack"`
	Amount    int    `json:"amount"`
	UserID    string `json:"userid"`
}

// NewInterviewRequest derives the wire request from spec.
func NewInterviewRequest(spec interview.Spec) InterviewRequest {
	return InterviewRequest{
		Role:      spec.Role,
		Level:     spec.Level,
		Type:      spec.Type,
		TechStack: strings.Join(spec.TechStack, ","),
		Amount:    len(spec.Questions),
		UserID:    spec.CandidateID,
	}
}

// Message is one transcript line in the feedback wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FeedbackPayload is the wire form of a [interview.FeedbackRequest].
type FeedbackPayload struct {
	InterviewID string    `json:"interviewId"`
	UserID      string    `json:"userId"`
	FeedbackID  string    `json:"feedbackId,omitempty"`
	Transcript  []Message `json:"transcript"`
}

// NewFeedbackPayload converts req to its wire form. The transcript is never
// nil so it encodes as an empty array.
func NewFeedbackPayload(req interview.FeedbackRequest) FeedbackPayload {
	msgs := make([]Message, 0, len(req.Transcript))
	for _, e := range req.Transcript {
		msgs = append(msgs, Message{Role: e.Speaker.Role(), Content: e.Text})
	}
	return FeedbackPayload{
		InterviewID: req.InterviewID,
		UserID:      req.CandidateID,
		FeedbackID:  req.FeedbackID,
		Transcript:  msgs,
	}
}
