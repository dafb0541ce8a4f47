package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// ReferralRepository tracks referral priority and decision state for the
// escalation sweep.
type ReferralRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReferralRepository creates a new referral repository.
func NewReferralRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReferralRepository {
	return &ReferralRepository{
		db:  db,
		log: logger,
	}
}

// Upsert records a referral's latest priority. An existing referral keeps
// its decision and creation time.
func (r *ReferralRepository) Upsert(ctx context.Context, referral *domain.Referral) error {
	query := `
		INSERT INTO referrals (id, priority, decision, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET priority = EXCLUDED.priority`

	_, err := r.db.Exec(ctx, query,
		referral.ID,
		string(referral.Priority),
		string(referral.Decision),
		referral.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting referral: %w", err)
	}
	return nil
}

// SetDecision records the clinical decision for a referral.
func (r *ReferralRepository) SetDecision(ctx context.Context, referralID string, decision domain.DecisionOutcome) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE referrals SET decision = $1 WHERE id = $2",
		string(decision), referralID,
	)
	if err != nil {
		return fmt.Errorf("updating referral decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "referral", ID: referralID}
	}

	r.log.WithFields(logrus.Fields{
		"referral_id": referralID,
		"decision":    decision,
	}).Info("Referral decision recorded")
	return nil
}

// Get retrieves a referral by id.
func (r *ReferralRepository) Get(ctx context.Context, id string) (*domain.Referral, error) {
	var referral domain.Referral
	var priority, decision string

	err := r.db.QueryRow(ctx,
		"SELECT id, priority, decision, created_at FROM referrals WHERE id = $1", id,
	).Scan(&referral.ID, &priority, &decision, &referral.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "referral", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("querying referral: %w", err)
	}

	referral.Priority = domain.Priority(priority)
	referral.Decision = domain.DecisionOutcome(decision)
	return &referral, nil
}

// ListUndecidedCritical returns critical referrals still awaiting a
// decision that were created before the cutoff, oldest first.
func (r *ReferralRepository) ListUndecidedCritical(ctx context.Context, createdBefore time.Time) ([]*domain.Referral, error) {
	query := `
		SELECT id, priority, decision, created_at
		FROM referrals
		WHERE priority = 'CRITICAL' AND decision = 'none' AND created_at < $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, createdBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying undecided referrals: %w", err)
	}
	defer rows.Close()

	var referrals []*domain.Referral
	for rows.Next() {
		var referral domain.Referral
		var priority, decision string
		if err := rows.Scan(&referral.ID, &priority, &decision, &referral.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning referral: %w", err)
		}
		referral.Priority = domain.Priority(priority)
		referral.Decision = domain.DecisionOutcome(decision)
		referrals = append(referrals, &referral)
	}
	return referrals, rows.Err()
}
