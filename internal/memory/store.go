// Package memory keeps a SQLite history of generation outcomes.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"memorylane/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.OutcomeRecorder using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// StatusCount is the number of recorded outcomes with a given status.
type StatusCount struct {
	Status domain.OutcomeStatus
	Count  int
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite: jobs record concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// RecordOutcome stores o. Recording the same job twice keeps the latest row.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, o domain.DeliveryOutcome) error {
	if o.JobID == "" {
		return fmt.Errorf("record outcome: empty job id")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generations
		 (job_id, event_id, channel, thread_ts, user_id, prompt, enhanced_prompt, image_url, status, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.JobID, o.EventID, o.Channel, o.ThreadTS, o.User, o.Prompt, o.EnhancedPrompt,
		o.ImageURL, string(o.Status), o.Error, o.Duration.Milliseconds(), o.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", o.JobID, err)
	}
	s.logger.Debug("outcome recorded", "job", o.JobID, "status", o.Status)
	return nil
}

const selectOutcomes = `SELECT job_id, event_id, channel, thread_ts, user_id, prompt, enhanced_prompt,
	image_url, status, error, duration_ms, created_at FROM generations`

// ListRecent returns the newest outcomes first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]domain.DeliveryOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		selectOutcomes+` ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// ListByUser returns the newest outcomes requested by a Slack user.
func (s *SQLiteStore) ListByUser(ctx context.Context, user string, limit int) ([]domain.DeliveryOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		selectOutcomes+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, user, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

func scanOutcomes(rows *sql.Rows) ([]domain.DeliveryOutcome, error) {
	var out []domain.DeliveryOutcome
	for rows.Next() {
		var (
			o          domain.DeliveryOutcome
			status     string
			durationMS int64
			createdMS  int64
		)
		if err := rows.Scan(&o.JobID, &o.EventID, &o.Channel, &o.ThreadTS, &o.User,
			&o.Prompt, &o.EnhancedPrompt, &o.ImageURL, &status, &o.Error,
			&durationMS, &createdMS); err != nil {
			return nil, err
		}
		o.Status = domain.OutcomeStatus(status)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		o.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Stats counts recorded outcomes per status.
func (s *SQLiteStore) Stats(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM generations GROUP BY status ORDER BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []StatusCount
	for rows.Next() {
		var sc StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count); err != nil {
			return nil, err
		}
		sc.Status = domain.OutcomeStatus(status)
		stats = append(stats, sc)
	}
	return stats, rows.Err()
}

// Prune deletes outcomes recorded before cutoff and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM generations WHERE created_at < ?`, cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database is reachable and writable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS _ping (x INTEGER)`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
