package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/referral-triage-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite. Meant for
// single-node and offline deployments where running Postgres is overkill.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
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

// scanClassification scans a row into a ClassificationResult.
func scanClassification(s scanner) (*domain.ClassificationResult, error) {
	result := &domain.ClassificationResult{}
	var priority, outcome, subScoresJSON string

	err := s.Scan(
		&result.ID, &result.ReferralID, &priority,
		&result.Score, &result.Confidence, &subScoresJSON,
		&result.WeightVersion, &outcome, &result.ClassifiedAt,
	)
	if err != nil {
		return nil, err
	}

	result.Priority = domain.Priority(priority)
	result.Outcome = domain.DecisionOutcome(outcome)
	if err := json.Unmarshal([]byte(subScoresJSON), &result.SubScores); err != nil {
		return nil, fmt.Errorf("failed to decode sub-scores: %w", err)
	}
	return result, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS classifications (
		id TEXT PRIMARY KEY,
		referral_id TEXT NOT NULL,
		priority TEXT NOT NULL,
		score REAL NOT NULL,
		confidence REAL NOT NULL,
		sub_scores TEXT NOT NULL,
		weight_version INTEGER NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'none',
		classified_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_classifications_referral ON classifications(referral_id);
	CREATE INDEX IF NOT EXISTS idx_classifications_classified_at ON classifications(classified_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Record appends a classification decision.
func (s *SQLiteStore) Record(ctx context.Context, result *domain.ClassificationResult) error {
	subScores, err := json.Marshal(result.SubScores)
	if err != nil {
		return fmt.Errorf("failed to encode sub-scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifications (
			id, referral_id, priority, score, confidence,
			sub_scores, weight_version, outcome, classified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLiteStore) RecordOutcome(ctx context.Context, classificationID string, outcome domain.DecisionOutcome) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE classifications SET outcome = ? WHERE id = ?",
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

const classificationColumns = `id, referral_id, priority, score, confidence,
		sub_scores, weight_version, outcome, classified_at`

// Get returns a classification by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.ClassificationResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+classificationColumns+`
		FROM classifications
		WHERE id = ?
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
func (s *SQLiteStore) LastForReferral(ctx context.Context, referralID string) (*domain.ClassificationResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+classificationColumns+`
		FROM classifications
		WHERE referral_id = ?
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
func (s *SQLiteStore) FetchForPeriod(ctx context.Context, start, end time.Time) ([]*domain.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+classificationColumns+`
		FROM classifications
		WHERE classified_at >= ? AND classified_at < ?
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

// Accuracy computes correctness over [start, end). Undecided rows count
// toward total but not toward decided or correct.
func (s *SQLiteStore) Accuracy(ctx context.Context, start, end time.Time) (*domain.AccuracyReport, error) {
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
		WHERE classified_at >= ? AND classified_at < ?
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
