package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/referral-triage-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite feedback store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFeedback scans a row into a FeedbackRecord.
func scanFeedback(s scanner) (*domain.FeedbackRecord, error) {
	record := &domain.FeedbackRecord{}

	err := s.Scan(
		&record.ID, &record.ClassificationID, &record.ReferralID,
		&record.ClinicianID, &record.OriginalScore, &record.CorrectedScore,
		&record.Difference, &record.Rationale, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		classification_id TEXT NOT NULL,
		referral_id TEXT NOT NULL,
		clinician_id TEXT DEFAULT '',
		original_score REAL NOT NULL,
		corrected_score REAL NOT NULL,
		difference REAL NOT NULL,
		rationale TEXT DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_referral ON feedback(referral_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

const feedbackColumns = `id, classification_id, referral_id, clinician_id,
		original_score, corrected_score, difference, rationale, created_at`

// Save appends a feedback record.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (
			id, classification_id, referral_id, clinician_id,
			original_score, corrected_score, difference, rationale, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.ClassificationID,
		record.ReferralID,
		record.ClinicianID,
		record.OriginalScore,
		record.CorrectedScore,
		record.Difference,
		record.Rationale,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get returns a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.FeedbackRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE id = ?
	`, id)

	record, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "feedback", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return record, nil
}

// ListSince returns records created at or after the given time, newest first.
func (s *SQLiteStore) ListSince(ctx context.Context, since time.Time) ([]*domain.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var records []*domain.FeedbackRecord
	for rows.Next() {
		record, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountSince returns the number of records created at or after the given time.
func (s *SQLiteStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM feedback WHERE created_at >= ?",
		since.UTC(),
	).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
