// Package postgres implements [persistence.Service] on PostgreSQL.
//
// Interviews and feedback are stored in two tables created by [Store.Migrate].
// Identifiers are random UUIDs generated client-side. Creating feedback with
// an existing FeedbackID overwrites that record, so a candidate can retake an
// interview without accumulating stale feedback rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/persistence"
)

// Compile-time interface check.
var _ persistence.Service = (*Store)(nil)

// Schema is the SQL DDL for both tables. Execute it via [Store.Migrate] or
// apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS interviews (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    role        TEXT NOT NULL,
    level       TEXT NOT NULL,
    type        TEXT NOT NULL,
    techstack   JSONB NOT NULL DEFAULT '[]',
    questions   JSONB NOT NULL DEFAULT '[]',
    finalized   BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_interviews_user ON interviews(user_id);

CREATE TABLE IF NOT EXISTS feedback (
    id            TEXT PRIMARY KEY,
    interview_id  TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    transcript    JSONB NOT NULL DEFAULT '[]',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_feedback_interview ON feedback(interview_id, user_id);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is safe for concurrent use when DB is.
type Store struct {
	db    DB
	newID func() string
}

// Option configures a [Store].
type Option func(*Store)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore wraps db. The caller is responsible for calling [Store.Migrate].
func NewStore(db DB, opts ...Option) *Store {
	s := &Store{db: db, newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open connects a pool to dsn, pings it and runs [Store.Migrate]. The caller
// owns the returned pool and must close it.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := NewStore(pool, opts...)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// CreateInterview implements [persistence.Service].
func (s *Store) CreateInterview(ctx context.Context, spec interview.Spec) (persistence.InterviewResult, error) {
	stackJSON, err := json.Marshal(emptySlice(spec.TechStack))
	if err != nil {
		return persistence.InterviewResult{}, fmt.Errorf("postgres: marshal techstack: %w", err)
	}
	questionsJSON, err := json.Marshal(emptySlice(spec.Questions))
	if err != nil {
		return persistence.InterviewResult{}, fmt.Errorf("postgres: marshal questions: %w", err)
	}

	const query = `
		INSERT INTO interviews (id, user_id, role, level, type, techstack, questions, finalized, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	id := s.newID()
	_, err = s.db.Exec(ctx, query,
		id, spec.CandidateID, spec.Role, spec.Level, spec.Type,
		stackJSON, questionsJSON, spec.Finalized, spec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return persistence.InterviewResult{Error: "interview id collision"}, nil
		}
		return persistence.InterviewResult{}, fmt.Errorf("postgres: create interview: %w", err)
	}
	return persistence.InterviewResult{Success: true, InterviewID: id}, nil
}

// CreateFeedback implements [persistence.Service]. A request without a
// FeedbackID gets a fresh one; a request with one replaces that record.
// Requests missing the interview or candidate id are rejected.
func (s *Store) CreateFeedback(ctx context.Context, req interview.FeedbackRequest) (persistence.FeedbackResult, error) {
	if req.InterviewID == "" || req.CandidateID == "" {
		return persistence.FeedbackResult{}, nil
	}

	payload := persistence.NewFeedbackPayload(req)
	transcriptJSON, err := json.Marshal(payload.Transcript)
	if err != nil {
		return persistence.FeedbackResult{}, fmt.Errorf("postgres: marshal transcript: %w", err)
	}

	id := req.FeedbackID
	if id == "" {
		id = s.newID()
	}

	const query = `
		INSERT INTO feedback (id, interview_id, user_id, transcript)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET
			interview_id = EXCLUDED.interview_id,
			user_id      = EXCLUDED.user_id,
			transcript   = EXCLUDED.transcript,
			updated_at   = now()
		RETURNING id`

	var stored string
	if err := s.db.QueryRow(ctx, query, id, req.InterviewID, req.CandidateID, transcriptJSON).Scan(&stored); err != nil {
		return persistence.FeedbackResult{}, fmt.Errorf("postgres: create feedback: %w", err)
	}
	return persistence.FeedbackResult{Success: true, FeedbackID: stored}, nil
}

// GetInterview loads an interview by id. It returns (nil, nil) when no row
// exists.
func (s *Store) GetInterview(ctx context.Context, id string) (*interview.Spec, error) {
	const query = `
		SELECT user_id, role, level, type, techstack, questions, finalized, created_at
		FROM interviews
		WHERE id = $1`

	var (
		spec                     interview.Spec
		stackJSON, questionsJSON []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&spec.CandidateID, &spec.Role, &spec.Level, &spec.Type,
		&stackJSON, &questionsJSON, &spec.Finalized, &spec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get interview: %w", err)
	}
	if err := json.Unmarshal(stackJSON, &spec.TechStack); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal techstack: %w", err)
	}
	if err := json.Unmarshal(questionsJSON, &spec.Questions); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal questions: %w", err)
	}
	return &spec, nil
}

// isDuplicateKeyError reports a unique-violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
