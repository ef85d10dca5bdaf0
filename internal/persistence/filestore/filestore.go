// Package filestore persists session outcomes as append-only JSON lines in a
// local file. It suits single-user setups and serves as the last fallback
// behind a remote backend.
//
// Every call appends one [Record]. A feedback request that reuses a
// FeedbackID appends a new line with the same id; readers keep the last one.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/persistence"
)

// Compile-time interface check.
var _ persistence.Service = (*Store)(nil)

// Record kinds.
const (
	KindInterview = "interview"
	KindFeedback  = "feedback"
)

// Record is a single line of the file.
type Record struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Interview *persistence.InterviewRequest `json:"interview,omitempty"`
	Questions []string                      `json:"questions,omitempty"`
	Feedback  *persistence.FeedbackPayload  `json:"feedback,omitempty"`
}

// Store appends records to a file. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	open func(path string) (io.WriteCloser, error)
}

// New returns a Store writing to path. The file and its directory are
// created on first write.
func New(path string) *Store {
	return &Store{path: path, now: time.Now, open: openAppend}
}

func openAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// CreateInterview implements [persistence.Service].
func (s *Store) CreateInterview(_ context.Context, spec interview.Spec) (persistence.InterviewResult, error) {
	req := persistence.NewInterviewRequest(spec)
	rec := Record{
		Kind:      KindInterview,
		ID:        uuid.NewString(),
		Interview: &req,
		Questions: spec.Questions,
	}
	if err := s.append(rec); err != nil {
		return persistence.InterviewResult{}, err
	}
	return persistence.InterviewResult{Success: true, InterviewID: rec.ID}, nil
}

// CreateFeedback implements [persistence.Service].
func (s *Store) CreateFeedback(_ context.Context, req interview.FeedbackRequest) (persistence.FeedbackResult, error) {
	id := req.FeedbackID
	if id == "" {
		id = uuid.NewString()
	}
	payload := persistence.NewFeedbackPayload(req)
	payload.FeedbackID = id

	if err := s.append(Record{Kind: KindFeedback, ID: id, Feedback: &payload}); err != nil {
		return persistence.FeedbackResult{}, err
	}
	return persistence.FeedbackResult{Success: true, FeedbackID: id}, nil
}

func (s *Store) append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Timestamp = s.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("filestore: marshal: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("filestore: create dir: %w", err)
		}
	}
	f, err := s.open(s.path)
	if err != nil {
		return fmt.Errorf("filestore: open file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("filestore: close: %w", err)
	}
	return nil
}

// ReadAll returns every record in file order. A missing file yields no
// records.
func (s *Store) ReadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("filestore: decode line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("filestore: read: %w", err)
	}
	return out, nil
}
