package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/referral-triage-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL feedback store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL feedback store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save appends a feedback record.
func (s *PostgresStore) Save(ctx context.Context, record *domain.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (
			id, classification_id, referral_id, clinician_id,
			original_score, corrected_score, difference, rationale, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.FeedbackRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE id = $1
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
func (s *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]*domain.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE created_at >= $1
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
func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM feedback WHERE created_at >= $1",
		since.UTC(),
	).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
