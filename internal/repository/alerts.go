package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// AlertRepository handles critical alert persistence.
type AlertRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *pgxpool.Pool, logger *logrus.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: logger,
	}
}

const alertColumns = `id, title, message, priority, type, source_referral_id,
		target_role, assigned_user_id, status, action_required, expires_at,
		metadata, created_at, updated_at, acknowledged_by, acknowledged_at,
		resolved_by, resolved_at, escalated_at`

// Create inserts a new alert. The partial unique index on pending
// (source_referral_id, type) pairs rejects duplicates at the database
// level as well.
func (r *AlertRepository) Create(ctx context.Context, alert *domain.CriticalAlert) error {
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO alerts (
			id, title, message, priority, type, source_referral_id,
			target_role, assigned_user_id, status, action_required,
			expires_at, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err = r.db.Exec(ctx, query,
		alert.ID,
		alert.Title,
		alert.Message,
		string(alert.Priority),
		string(alert.Type),
		alert.SourceReferralID,
		alert.TargetRole,
		alert.AssignedUserID,
		string(alert.Status),
		alert.ActionRequired,
		alert.ExpiresAt,
		metadata,
		alert.CreatedAt.UTC(),
		alert.UpdatedAt.UTC(),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"referral": alert.SourceReferralID,
			"error":    err,
		}).Error("Failed to create alert")
		return fmt.Errorf("creating alert: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"type":     alert.Type,
		"priority": alert.Priority,
	}).Info("Alert created")
	return nil
}

func scanAlert(row pgx.Row) (*domain.CriticalAlert, error) {
	var alert domain.CriticalAlert
	var priority, alertType, status string
	var metadata []byte

	err := row.Scan(
		&alert.ID, &alert.Title, &alert.Message, &priority, &alertType,
		&alert.SourceReferralID, &alert.TargetRole, &alert.AssignedUserID,
		&status, &alert.ActionRequired, &alert.ExpiresAt, &metadata,
		&alert.CreatedAt, &alert.UpdatedAt, &alert.AcknowledgedBy,
		&alert.AcknowledgedAt, &alert.ResolvedBy, &alert.ResolvedAt,
		&alert.EscalatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Priority = domain.AlertPriority(priority)
	alert.Type = domain.AlertType(alertType)
	alert.Status = domain.AlertStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return &alert, nil
}

// Get retrieves an alert by id.
func (r *AlertRepository) Get(ctx context.Context, id string) (*domain.CriticalAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "alert", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("querying alert: %w", err)
	}
	return alert, nil
}

// Update persists the alert's mutable lifecycle fields.
func (r *AlertRepository) Update(ctx context.Context, alert *domain.CriticalAlert) error {
	query := `
		UPDATE alerts SET
			priority = $1,
			target_role = $2,
			assigned_user_id = $3,
			status = $4,
			updated_at = $5,
			acknowledged_by = $6,
			acknowledged_at = $7,
			resolved_by = $8,
			resolved_at = $9,
			escalated_at = $10
		WHERE id = $11`

	tag, err := r.db.Exec(ctx, query,
		string(alert.Priority),
		alert.TargetRole,
		alert.AssignedUserID,
		string(alert.Status),
		alert.UpdatedAt.UTC(),
		alert.AcknowledgedBy,
		alert.AcknowledgedAt,
		alert.ResolvedBy,
		alert.ResolvedAt,
		alert.EscalatedAt,
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("updating alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "alert", ID: alert.ID}
	}
	return nil
}

// FindPending returns the pending alert for a (source, type) pair, or nil.
func (r *AlertRepository) FindPending(ctx context.Context, sourceReferralID string, alertType domain.AlertType) (*domain.CriticalAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE source_referral_id = $1 AND type = $2 AND status = 'pending'
		LIMIT 1`

	alert, err := scanAlert(r.db.QueryRow(ctx, query, sourceReferralID, string(alertType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending alert: %w", err)
	}
	return alert, nil
}

// ListByStatus returns alerts in the given status, oldest first.
func (r *AlertRepository) ListByStatus(ctx context.Context, status domain.AlertStatus) ([]*domain.CriticalAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE status = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.CriticalAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
