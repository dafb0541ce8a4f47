// Package repository provides PostgreSQL persistence for weight vectors,
// alerts, referrals and users via pgx connection pools.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// WeightRepository handles weight vector persistence.
type WeightRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewWeightRepository creates a new weight repository.
func NewWeightRepository(db *pgxpool.Pool, logger *logrus.Logger) *WeightRepository {
	return &WeightRepository{
		db:  db,
		log: logger,
	}
}

// Insert persists a new vector version.
func (r *WeightRepository) Insert(ctx context.Context, v *domain.WeightVector) error {
	weights, err := json.Marshal(v.Weights)
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	query := `
		INSERT INTO weight_vectors (
			version, weights, active, note, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)`

	_, err = r.db.Exec(ctx, query,
		v.Version,
		weights,
		v.Active,
		v.Note,
		v.CreatedAt.UTC(),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"version": v.Version,
			"error":   err,
		}).Error("Failed to insert weight vector")
		return fmt.Errorf("inserting weight vector: %w", err)
	}

	r.log.WithField("version", v.Version).Info("Weight vector inserted")
	return nil
}

// Activate marks the given version active and deactivates all others in
// one transaction.
func (r *WeightRepository) Activate(ctx context.Context, version int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "UPDATE weight_vectors SET active = FALSE WHERE active = TRUE"); err != nil {
		return fmt.Errorf("deactivating current vector: %w", err)
	}

	tag, err := tx.Exec(ctx, "UPDATE weight_vectors SET active = TRUE WHERE version = $1", version)
	if err != nil {
		return fmt.Errorf("activating vector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "weight_vector", ID: fmt.Sprintf("%d", version)}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing activation: %w", err)
	}

	r.log.WithField("version", version).Info("Weight vector activated")
	return nil
}

func scanWeightVector(row pgx.Row) (*domain.WeightVector, error) {
	var v domain.WeightVector
	var weights []byte
	var createdAt time.Time

	if err := row.Scan(&v.Version, &weights, &v.Active, &v.Note, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(weights, &v.Weights); err != nil {
		return nil, fmt.Errorf("decoding weights: %w", err)
	}
	v.CreatedAt = createdAt
	return &v, nil
}

// Active returns the currently active vector.
func (r *WeightRepository) Active(ctx context.Context) (*domain.WeightVector, error) {
	query := `
		SELECT version, weights, active, note, created_at
		FROM weight_vectors
		WHERE active = TRUE
		LIMIT 1`

	v, err := scanWeightVector(r.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveWeights
	}
	if err != nil {
		return nil, fmt.Errorf("querying active vector: %w", err)
	}
	return v, nil
}

// History returns all versions, newest first.
func (r *WeightRepository) History(ctx context.Context, limit int) ([]*domain.WeightVector, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT version, weights, active, note, created_at
		FROM weight_vectors
		ORDER BY version DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var vectors []*domain.WeightVector
	for rows.Next() {
		v, err := scanWeightVector(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}
