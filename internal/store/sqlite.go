package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/askhr/internal/domain"
	"github.com/ashureev/askhr/internal/shared"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Ledger using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed ledger.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode keeps the sweeper from blocking request writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		time_off_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		hours_per_day REAL NOT NULL,
		comment TEXT,
		outcome TEXT NOT NULL,
		status_code INTEGER,
		detail TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_worker_outcome ON submissions(worker_id, outcome);
	CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordSubmission inserts a ledger row.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub *domain.Submission) error {
	now := s.now()
	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	query := `
	INSERT INTO submissions (
		id, session_id, worker_id, time_off_type_id, start_date, end_date,
		hours_per_day, comment, outcome, status_code, detail, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "record_submission", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sub.ID, sub.SessionID, sub.WorkerID, sub.TimeOffTypeID, sub.StartDate, sub.EndDate,
			sub.HoursPerDay, nullString(sub.Comment), string(sub.Outcome), sub.StatusCode, nullString(sub.Detail),
			sub.CreatedAt.UnixNano(), sub.UpdatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// UnresolvedUncertain returns the worker's uncertain submissions.
func (s *SQLiteStore) UnresolvedUncertain(ctx context.Context, workerID string) ([]*domain.Submission, error) {
	return s.query(ctx, `
		SELECT id, session_id, worker_id, time_off_type_id, start_date, end_date,
		       hours_per_day, comment, outcome, status_code, detail, created_at, updated_at
		FROM submissions WHERE worker_id = ? AND outcome = ?
		ORDER BY created_at`, workerID, string(domain.OutcomeUncertain))
}

// MarkRequeried flips uncertain rows contained in [start, end] to requeried.
// A check that only touches part of a row leaves it unresolved.
func (s *SQLiteStore) MarkRequeried(ctx context.Context, workerID, start, end string) (int64, error) {
	query := `
		UPDATE submissions SET outcome = ?, updated_at = ?
		WHERE worker_id = ? AND outcome = ? AND start_date >= ? AND end_date <= ?`

	var affected int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "mark_requeried", func() error {
		result, err := s.db.ExecContext(ctx, query,
			string(domain.OutcomeRequeried), s.now().UnixNano(),
			workerID, string(domain.OutcomeUncertain), start, end,
		)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark requeried: %w", err)
	}
	return affected, nil
}

// RecentSubmissions returns up to limit rows, newest first.
func (s *SQLiteStore) RecentSubmissions(ctx context.Context, limit int) ([]*domain.Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
		SELECT id, session_id, worker_id, time_off_type_id, start_date, end_date,
		       hours_per_day, comment, outcome, status_code, detail, created_at, updated_at
		FROM submissions ORDER BY created_at DESC LIMIT ?`, limit)
}

// Cleanup deletes rows created before now - retention.
func (s *SQLiteStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := s.now().Add(-retention).UnixNano()
	var deleted int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "cleanup_submissions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup submissions: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close submission rows", "error", closeErr)
		}
	}()

	var subs []*domain.Submission
	for rows.Next() {
		var sub domain.Submission
		var comment, detail sql.NullString
		var statusCode sql.NullInt64
		var outcome string
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&sub.ID, &sub.SessionID, &sub.WorkerID, &sub.TimeOffTypeID, &sub.StartDate, &sub.EndDate,
			&sub.HoursPerDay, &comment, &outcome, &statusCode, &detail, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		sub.Comment = comment.String
		sub.Detail = detail.String
		sub.StatusCode = int(statusCode.Int64)
		sub.Outcome = domain.SubmissionOutcome(outcome)
		sub.CreatedAt = time.Unix(0, createdAt)
		sub.UpdatedAt = time.Unix(0, updatedAt)
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Ledger = (*SQLiteStore)(nil)
