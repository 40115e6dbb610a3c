// Package store persists scored attempts in SQLite and serves the snapshots
// that reports are computed from.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"reading-fluency-go/internal/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	cohort_id         TEXT NOT NULL DEFAULT '',
	test_type         TEXT NOT NULL,
	accuracy          REAL,
	is_correct        INTEGER,
	error_type        TEXT NOT NULL DEFAULT '',
	target_text       TEXT NOT NULL DEFAULT '',
	student_answer    TEXT NOT NULL DEFAULT '',
	transcription_raw TEXT,
	audio_url         TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_cohort ON attempts(cohort_id, test_type);
CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, created_at);
`

const columns = `id, user_id, cohort_id, test_type, accuracy, is_correct, error_type,
	target_text, student_answer, transcription_raw, audio_url, created_at`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return nil
}

// SaveAttempt inserts an attempt. Attempts are immutable; saving an existing
// id is an error.
func (s *Store) SaveAttempt(ctx context.Context, a types.AttemptResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO attempts (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args(a)...)
	if err != nil {
		return errors.Wrapf(err, "insert attempt %s", a.ID)
	}
	return nil
}

func args(a types.AttemptResult) []any {
	var raw any
	if len(a.TranscriptionRaw) > 0 {
		raw = string(a.TranscriptionRaw)
	}
	var correct any
	if a.IsCorrect != nil {
		correct = *a.IsCorrect
	}
	var accuracy any
	if a.Accuracy != nil {
		accuracy = *a.Accuracy
	}
	return []any{a.ID, a.UserID, a.CohortID, string(a.TestType), accuracy, correct, string(a.ErrorType),
		a.TargetText, a.StudentAnswer, raw, a.AudioURL, a.CreatedAt.UnixNano()}
}

// ImportAttempts inserts attempts in one transaction, skipping ids that are
// already stored. It returns the number of new rows.
func (s *Store) ImportAttempts(ctx context.Context, attempts []types.AttemptResult) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin import")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO attempts (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare import")
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range attempts {
		res, err := stmt.ExecContext(ctx, args(a)...)
		if err != nil {
			return 0, errors.Wrapf(err, "import attempt %s", a.ID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit import")
	}
	return inserted, nil
}

// ListAttempts returns every attempt of a cohort, oldest first. It is a
// point-in-time snapshot; attempts saved afterwards are not reflected.
func (s *Store) ListAttempts(ctx context.Context, cohortID string) ([]types.AttemptResult, error) {
	return s.query(ctx, `SELECT `+columns+` FROM attempts WHERE cohort_id = ? ORDER BY created_at ASC, id ASC`, cohortID)
}

// AttemptsForUser returns a student's attempts, oldest first.
func (s *Store) AttemptsForUser(ctx context.Context, userID string) ([]types.AttemptResult, error) {
	return s.query(ctx, `SELECT `+columns+` FROM attempts WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
}

// Cohorts lists the distinct cohort ids that have attempts.
func (s *Store) Cohorts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT cohort_id FROM attempts ORDER BY cohort_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query cohorts")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scan cohort")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]types.AttemptResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query attempts")
	}
	defer rows.Close()

	var out []types.AttemptResult
	for rows.Next() {
		var (
			a         types.AttemptResult
			testType  string
			errorType string
			accuracy  sql.NullFloat64
			correct   sql.NullBool
			raw       sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.CohortID, &testType, &accuracy, &correct, &errorType,
			&a.TargetText, &a.StudentAnswer, &raw, &a.AudioURL, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan attempt")
		}
		a.TestType = types.TestType(testType)
		a.ErrorType = types.ErrorKind(errorType)
		if accuracy.Valid {
			v := accuracy.Float64
			a.Accuracy = &v
		}
		if correct.Valid {
			v := correct.Bool
			a.IsCorrect = &v
		}
		if raw.Valid {
			a.TranscriptionRaw = json.RawMessage(raw.String)
		}
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
