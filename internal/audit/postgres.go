package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/referral-triage-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
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

// NewPostgresStoreFromURL creates a new PostgreSQL audit store from a
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

// Record appends a classification decision.
func (s *PostgresStore) Record(ctx context.Context, result *domain.ClassificationResult) error {
	subScores, err := json.Marshal(result.SubScores)
	if err != nil {
		return fmt.Errorf("failed to encode sub-scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifications (
			id, referral_id, priority, score, confidence,
			sub_scores, weight_version, outcome, classified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		result.ID,
		result.ReferralID,
		string(result.Priority),
		result.Score,
		result.Confidence,
		string(subScores),
		result.WeightVersion,
		string(result.Outcome),
		result.ClassifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// RecordOutcome attaches the clinical decision to a prior classification.
func (s *PostgresStore) RecordOutcome(ctx context.Context, classificationID string, outcome domain.DecisionOutcome) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE classifications SET outcome = $1 WHERE id = $2",
		string(outcome), classificationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "classification", ID: classificationID}
	}
	return nil
}

// Get returns a classification by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ClassificationResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+classificationColumns+`
		FROM classifications
		WHERE id = $1
	`, id)

	result, err := scanClassification(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "classification", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return result, nil
}

// LastForReferral returns the most recent classification for a referral.
func (s *PostgresStore) LastForReferral(ctx context.Context, referralID string) (*domain.ClassificationResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+classificationColumns+`
		FROM classifications
		WHERE referral_id = $1
		ORDER BY classified_at DESC
		LIMIT 1
	`, referralID)

	result, err := scanClassification(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "classification", ID: referralID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return result, nil
}

// FetchForPeriod returns classifications in [start, end), oldest first.
func (s *PostgresStore) FetchForPeriod(ctx context.Context, start, end time.Time) ([]*domain.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+classificationColumns+`
		FROM classifications
		WHERE classified_at >= $1 AND classified_at < $2
		ORDER BY classified_at ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var results []*domain.ClassificationResult
	for rows.Next() {
		result, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// Accuracy computes correctness over [start, end).
func (s *PostgresStore) Accuracy(ctx context.Context, start, end time.Time) (*domain.AccuracyReport, error) {
	report := &domain.AccuracyReport{
		PeriodStart: start,
		PeriodEnd:   end,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome != 'none'),
			COUNT(*) FILTER (WHERE (priority = 'CRITICAL' AND outcome = 'accepted')
				OR (priority = 'ROUTINE' AND outcome = 'rejected'))
		FROM classifications
		WHERE classified_at >= $1 AND classified_at < $2
	`, start.UTC(), end.UTC()).Scan(&report.Total, &report.Decided, &report.Correct)
	if err != nil {
		return nil, fmt.Errorf("failed to compute accuracy: %w", err)
	}

	if report.Decided > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Decided)
	}
	return report, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
