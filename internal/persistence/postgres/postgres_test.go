package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type call struct {
	sql  string
	args []any
}

// mockDB records every statement and answers with the configured functions.
type mockDB struct {
	execErr error
	rowFunc func(sql string, args []any) pgx.Row
	execs   []call
	queries []call
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.queries = append(m.queries, call{sql: sql, args: args})
	if m.rowFunc != nil {
		return m.rowFunc(sql, args)
	}
	return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, call{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

func fixedID(id string) Option {
	return WithIDGenerator(func() string { return id })
}

// ---------------------------------------------------------------------------
// Unit tests
// ---------------------------------------------------------------------------

func TestMigrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	if err := NewStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS interviews") {
		t.Errorf("execs = %+v", db.execs)
	}

	db = &mockDB{execErr: errors.New("permission denied")}
	err := NewStore(db).Migrate(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "postgres: migrate:") {
		t.Errorf("Migrate err = %v", err)
	}
}

func TestCreateInterview_InsertsRow(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	res, err := NewStore(db, fixedID("iv-1")).CreateInterview(context.Background(), interview.Spec{
		Role:        "SRE",
		Level:       "Senior",
		Type:        "Technical",
		TechStack:   []string{"Go", "Terraform"},
		Questions:   nil,
		CandidateID: "u1",
		Finalized:   true,
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if !res.Success || res.InterviewID != "iv-1" {
		t.Errorf("result = %+v", res)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(db.execs))
	}
	args := db.execs[0].args
	if args[0] != "iv-1" || args[1] != "u1" || args[2] != "SRE" {
		t.Errorf("args = %v", args)
	}
	if got := string(args[5].([]byte)); got != `["Go","Terraform"]` {
		t.Errorf("techstack = %s", got)
	}
	if got := string(args[6].([]byte)); got != `[]` {
		t.Errorf("questions = %s, want []", got)
	}
	if args[7] != true || args[8] != created {
		t.Errorf("finalized/created = %v/%v", args[7], args[8])
	}
}

func TestCreateInterview_Errors(t *testing.T) {
	t.Parallel()

	dup := &mockDB{execErr: &pgconn.PgError{Code: "23505"}}
	res, err := NewStore(dup).CreateInterview(context.Background(), interview.Spec{})
	if err != nil {
		t.Fatalf("duplicate key should be a rejection, got err %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v", res)
	}

	broken := &mockDB{execErr: errors.New("connection reset")}
	if _, err := NewStore(broken).CreateInterview(context.Background(), interview.Spec{}); err == nil {
		t.Error("expected error")
	}
}

func TestCreateFeedback_UpsertsWithSuppliedID(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		rowFunc: func(_ string, args []any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*string) = args[0].(string)
				return nil
			}}
		},
	}
	s := NewStore(db, fixedID("generated"))

	res, err := s.CreateFeedback(context.Background(), interview.FeedbackRequest{
		InterviewID: "iv-1",
		CandidateID: "u1",
		FeedbackID:  "fb-existing",
		Transcript: []interview.TranscriptEntry{
			{Speaker: interview.SpeakerCandidate, Text: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}
	if !res.Success || res.FeedbackID != "fb-existing" {
		t.Errorf("result = %+v", res)
	}
	q := db.queries[0]
	if !strings.Contains(q.sql, "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("query is not an upsert: %s", q.sql)
	}
	var msgs []map[string]string
	if err := json.Unmarshal(q.args[3].([]byte), &msgs); err != nil {
		t.Fatalf("transcript arg: %v", err)
	}
	if len(msgs) != 1 || msgs[0]["role"] != "user" || msgs[0]["content"] != "hello" {
		t.Errorf("transcript = %v", msgs)
	}

	// Without an id a fresh one is generated.
	res, err = s.CreateFeedback(context.Background(), interview.FeedbackRequest{InterviewID: "iv-1", CandidateID: "u1"})
	if err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}
	if res.FeedbackID != "generated" {
		t.Errorf("FeedbackID = %q, want generated", res.FeedbackID)
	}
}

func TestCreateFeedback_RejectsMissingIDs(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	res, err := NewStore(db).CreateFeedback(context.Background(), interview.FeedbackRequest{CandidateID: "u1"})
	if err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}
	if res.Success {
		t.Error("expected unsuccessful result")
	}
	if len(db.queries) != 0 {
		t.Error("no query should be issued")
	}
}

func TestGetInterview_NotFound(t *testing.T) {
	t.Parallel()

	spec, err := NewStore(&mockDB{}).GetInterview(context.Background(), "missing")
	if err != nil || spec != nil {
		t.Errorf("GetInterview = %v, %v; want nil, nil", spec, err)
	}
}

func TestDefaultIDsAreUUIDs(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	res, err := NewStore(db).CreateInterview(context.Background(), interview.Spec{})
	if err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if len(res.InterviewID) != 36 || strings.Count(res.InterviewID, "-") != 4 {
		t.Errorf("InterviewID = %q, want UUID", res.InterviewID)
	}
}
