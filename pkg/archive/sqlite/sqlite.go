// Package sqlite implements archive.Archive on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jxucoder/TeleInterview/pkg/archive"
	"github.com/jxucoder/TeleInterview/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS interviews (
	id             TEXT PRIMARY KEY,
	candidate_name TEXT NOT NULL,
	job_title      TEXT NOT NULL,
	interview_type TEXT NOT NULL,
	final_score    REAL,
	start_time     DATETIME,
	completed_at   DATETIME,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS questions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	interview_id    TEXT NOT NULL REFERENCES interviews(id) ON DELETE CASCADE,
	question_number INTEGER NOT NULL,
	question_text   TEXT NOT NULL,
	answer          TEXT NOT NULL DEFAULT '',
	score           REAL NOT NULL,
	feedback        TEXT NOT NULL DEFAULT '',
	audio_blake3    TEXT NOT NULL DEFAULT '',
	degraded        INTEGER NOT NULL DEFAULT 0,
	defaulted       INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_questions_interview_id
	ON questions(interview_id);
`

// Store is a SQLite-backed archive.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ archive.Archive = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema returns the archive DDL.
func (s *Store) Schema() string { return schema }

// Save inserts the interview and its questions in one transaction.
func (s *Store) Save(ctx context.Context, rec *model.InterviewRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO interviews (id, candidate_name, job_title, interview_type,
		                         final_score, start_time, completed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CandidateName, rec.JobTitle, string(rec.InterviewType),
		rec.FinalScore, rec.StartTime.UTC(), rec.CompletedAt.UTC(), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting interview: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (interview_id, question_number, question_text, answer,
		                        score, feedback, audio_blake3, degraded, defaulted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing question insert: %w", err)
	}
	defer stmt.Close()
	for _, q := range rec.Questions {
		_, err := stmt.ExecContext(ctx, rec.ID, q.Number, q.Question, q.Answer,
			q.Score, q.Feedback, q.AudioHash, q.Degraded, q.Defaulted, rec.CreatedAt.UTC())
		if err != nil {
			return "", fmt.Errorf("inserting question %d: %w", q.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing interview: %w", err)
	}
	return rec.ID, nil
}

// List returns every interview ordered by creation time (newest first).
func (s *Store) List(ctx context.Context) ([]*model.InterviewRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, candidate_name, job_title, interview_type, final_score,
		        start_time, completed_at, created_at
		 FROM interviews ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.InterviewRecord
	for rows.Next() {
		rec, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one interview with its questions.
func (s *Store) Get(ctx context.Context, id string) (*model.InterviewRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, candidate_name, job_title, interview_type, final_score,
		        start_time, completed_at, created_at
		 FROM interviews WHERE id = ?`, id)
	rec, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrInterviewNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	qs, err := s.questions(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Questions = qs
	return rec, nil
}

func (s *Store) questions(ctx context.Context, interviewID string) ([]model.QARecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_number, question_text, answer, score, feedback,
		        audio_blake3, degraded, defaulted
		 FROM questions WHERE interview_id = ?
		 ORDER BY question_number ASC`, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QARecord
	for rows.Next() {
		var q model.QARecord
		if err := rows.Scan(&q.Number, &q.Question, &q.Answer, &q.Score, &q.Feedback,
			&q.AudioHash, &q.Degraded, &q.Defaulted); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInterview(row scannable) (*model.InterviewRecord, error) {
	rec := &model.InterviewRecord{}
	var (
		itype string
		score sql.NullFloat64
	)
	err := row.Scan(&rec.ID, &rec.CandidateName, &rec.JobTitle, &itype, &score,
		&rec.StartTime, &rec.CompletedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.InterviewType = model.InterviewType(itype)
	rec.FinalScore = score.Float64
	return rec, nil
}
