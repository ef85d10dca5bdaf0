// Package httpapi implements [persistence.Service] against the interview web
// application's JSON API.
//
//	POST {base}/api/feedback       body: persistence.FeedbackPayload
//	                               resp: {"success":bool,"feedbackId":string}
//	POST {base}/api/vapi/generate  body: persistence.InterviewRequest
//	                               resp: {"success":bool,"error":string}
//
// A non-2xx status is an error. A 2xx response whose body reports
// success=false is returned as an unsuccessful result without an error.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/persistence"
)

// Compile-time interface assertion.
var _ persistence.Service = (*Client)(nil)

const (
	feedbackPath = "/api/feedback"
	generatePath = "/api/vapi/generate"

	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithAPIKey sends key as a Bearer token on every request.
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// Client talks to the persistence API. It is safe for concurrent use.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateFeedback implements [persistence.Service].
func (c *Client) CreateFeedback(ctx context.Context, req interview.FeedbackRequest) (persistence.FeedbackResult, error) {
	var res persistence.FeedbackResult
	if err := c.post(ctx, feedbackPath, persistence.NewFeedbackPayload(req), &res); err != nil {
		return persistence.FeedbackResult{}, fmt.Errorf("httpapi: create feedback: %w", err)
	}
	return res, nil
}

// CreateInterview implements [persistence.Service].
func (c *Client) CreateInterview(ctx context.Context, spec interview.Spec) (persistence.InterviewResult, error) {
	var res persistence.InterviewResult
	if err := c.post(ctx, generatePath, persistence.NewInterviewRequest(spec), &res); err != nil {
		return persistence.InterviewResult{}, fmt.Errorf("httpapi: create interview: %w", err)
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
