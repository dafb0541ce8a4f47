// Package alerting implements the escalation engine for unanswered
// critical referrals: a periodic sweep that creates time-based alerts and
// the acknowledge/resolve/escalate lifecycle transitions.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// Engine scans pending critical referrals and open alerts on a schedule.
// Sweeps are idempotent: duplicate suppression keys on (source, type) in
// pending state, so re-running a sweep, or retrying after a partial
// failure, creates nothing twice.
type Engine struct {
	logger     *logrus.Logger
	alerts     domain.AlertStore
	referrals  domain.ReferralSource
	users      domain.UserDirectory
	dispatcher domain.NotificationDispatcher
	cfg        domain.AlertsConfig
	nowFn      func() time.Time
}

// NewEngine creates a new escalation engine.
func NewEngine(
	logger *logrus.Logger,
	alerts domain.AlertStore,
	referrals domain.ReferralSource,
	users domain.UserDirectory,
	dispatcher domain.NotificationDispatcher,
	cfg domain.AlertsConfig,
) *Engine {
	return &Engine{
		logger:     logger,
		alerts:     alerts,
		referrals:  referrals,
		users:      users,
		dispatcher: dispatcher,
		cfg:        cfg,
		nowFn:      time.Now,
	}
}

// Sweep runs one evaluation pass and returns the alerts it created or
// escalated, for hand-off to the notification dispatcher's callers.
// Single-item failures are logged and skipped; partial progress is safe
// because creation is idempotent.
func (e *Engine) Sweep(ctx context.Context) ([]*domain.CriticalAlert, error) {
	now := e.nowFn().UTC()
	var touched []*domain.CriticalAlert

	referrals, err := e.referrals.ListUndecidedCritical(ctx, now.Add(-e.cfg.TimeoutAfter))
	if err != nil {
		return nil, fmt.Errorf("listing undecided critical referrals: %w", err)
	}

	for _, referral := range referrals {
		age := now.Sub(referral.CreatedAt)

		// The timeout and escalation rules are independent: past two
		// hours a referral holds one pending alert of each type.
		if age >= e.cfg.TimeoutAfter {
			if alert, err := e.ensureReferralAlert(ctx, referral, domain.AlertTypeTimeout, now); err != nil {
				e.logger.WithError(err).WithField("referral_id", referral.ID).Error("Failed to create timeout alert")
			} else if alert != nil {
				touched = append(touched, alert)
			}
		}
		if age >= e.cfg.EscalateAfter {
			if alert, err := e.ensureReferralAlert(ctx, referral, domain.AlertTypeEscalation, now); err != nil {
				e.logger.WithError(err).WithField("referral_id", referral.ID).Error("Failed to create escalation alert")
			} else if alert != nil {
				touched = append(touched, alert)
			}
		}
	}

	escalated, err := e.autoEscalate(ctx, now)
	if err != nil {
		e.logger.WithError(err).Error("Alert-level auto-escalation failed")
	}
	touched = append(touched, escalated...)

	e.logger.WithFields(logrus.Fields{
		"referrals_checked": len(referrals),
		"alerts_touched":    len(touched),
	}).Info("Alert sweep completed")

	return touched, nil
}

// ensureReferralAlert creates the alert for (referral, type) unless a
// pending one already exists. Returns nil when suppressed.
func (e *Engine) ensureReferralAlert(ctx context.Context, referral *domain.Referral, alertType domain.AlertType, now time.Time) (*domain.CriticalAlert, error) {
	existing, err := e.alerts.FindPending(ctx, referral.ID, alertType)
	if err != nil {
		return nil, fmt.Errorf("checking pending alert: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	alert := e.buildReferralAlert(referral, alertType, now)
	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("persisting alert: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"alert_type":  alert.Type,
		"referral_id": referral.ID,
		"target_role": alert.TargetRole,
	}).Info("Escalation alert created")

	e.notifyRole(ctx, alert, alert.TargetRole)
	return alert, nil
}

func (e *Engine) buildReferralAlert(referral *domain.Referral, alertType domain.AlertType, now time.Time) *domain.CriticalAlert {
	alert := &domain.CriticalAlert{
		ID:               uuid.NewString(),
		Type:             alertType,
		SourceReferralID: referral.ID,
		Status:           domain.AlertStatusPending,
		ActionRequired:   true,
		Metadata: map[string]string{
			"referral_created_at": referral.CreatedAt.UTC().Format(time.RFC3339),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch alertType {
	case domain.AlertTypeEscalation:
		alert.Priority = domain.AlertPriorityCritical
		alert.TargetRole = domain.RoleAdministrator
		alert.Title = "Critical referral unattended"
		alert.Message = fmt.Sprintf("Critical referral %s has had no decision for over %s", referral.ID, e.cfg.EscalateAfter)
	default:
		alert.Priority = domain.AlertPriorityHigh
		alert.TargetRole = domain.RoleClinician
		alert.Title = "Critical referral awaiting decision"
		alert.Message = fmt.Sprintf("Critical referral %s has had no decision for over %s", referral.ID, e.cfg.TimeoutAfter)
		expiry := now.Add(e.cfg.TimeoutExpiry)
		alert.ExpiresAt = &expiry
	}

	return alert
}

// autoEscalate moves CRITICAL-priority alerts still pending after the
// configured delay to escalated, retargeting supervisors.
func (e *Engine) autoEscalate(ctx context.Context, now time.Time) ([]*domain.CriticalAlert, error) {
	pending, err := e.alerts.ListByStatus(ctx, domain.AlertStatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending alerts: %w", err)
	}

	var escalated []*domain.CriticalAlert
	for _, alert := range pending {
		if alert.Priority != domain.AlertPriorityCritical {
			continue
		}
		if now.Sub(alert.CreatedAt) < e.cfg.AutoEscalateAfter {
			continue
		}

		alert.Status = domain.AlertStatusEscalated
		alert.TargetRole = domain.RoleAdministrator
		alert.EscalatedAt = &now
		alert.UpdatedAt = now

		if err := e.alerts.Update(ctx, alert); err != nil {
			e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to escalate alert")
			continue
		}

		e.logger.WithFields(logrus.Fields{
			"alert_id":   alert.ID,
			"alert_type": alert.Type,
		}).Warn("Pending critical alert auto-escalated to supervisors")

		e.notifyRole(ctx, alert, domain.RoleAdministrator)
		escalated = append(escalated, alert)
	}

	return escalated, nil
}

// Acknowledge transitions an alert from pending to acknowledged,
// recording the acknowledging user and time.
func (e *Engine) Acknowledge(ctx context.Context, alertID, userID string) (*domain.CriticalAlert, error) {
	return e.transition(ctx, alertID, userID, domain.AlertStatusAcknowledged)
}

// Resolve transitions an alert from pending or acknowledged to resolved.
// Resolved is terminal.
func (e *Engine) Resolve(ctx context.Context, alertID, userID string) (*domain.CriticalAlert, error) {
	return e.transition(ctx, alertID, userID, domain.AlertStatusResolved)
}

func (e *Engine) transition(ctx context.Context, alertID, userID string, next domain.AlertStatus) (*domain.CriticalAlert, error) {
	alert, err := e.alerts.Get(ctx, alertID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("alert", alertID)
		}
		return nil, fmt.Errorf("loading alert %s: %w", alertID, err)
	}

	if !alert.Status.CanTransitionTo(next) {
		return nil, &domain.TransitionError{AlertID: alertID, From: alert.Status, To: next}
	}

	now := e.nowFn().UTC()
	alert.Status = next
	alert.UpdatedAt = now
	switch next {
	case domain.AlertStatusAcknowledged:
		alert.AcknowledgedBy = userID
		alert.AcknowledgedAt = &now
	case domain.AlertStatusResolved:
		alert.ResolvedBy = userID
		alert.ResolvedAt = &now
	}

	if err := e.alerts.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("updating alert %s: %w", alertID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"alert_id": alertID,
		"status":   next,
		"user_id":  userID,
	}).Info("Alert transitioned")

	return alert, nil
}

// Raise creates a manual or system alert, honoring the same (source,
// type) duplicate suppression as sweep-created alerts.
func (e *Engine) Raise(ctx context.Context, alert *domain.CriticalAlert) (*domain.CriticalAlert, error) {
	if !alert.Type.IsValid() {
		return nil, domain.NewValidationError("type", "unknown alert type", alert.Type)
	}

	if alert.SourceReferralID != "" {
		existing, err := e.alerts.FindPending(ctx, alert.SourceReferralID, alert.Type)
		if err != nil {
			return nil, fmt.Errorf("checking pending alert: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := e.nowFn().UTC()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.Status = domain.AlertStatusPending
	alert.CreatedAt = now
	alert.UpdatedAt = now

	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("persisting alert: %w", err)
	}

	e.notifyRole(ctx, alert, alert.TargetRole)
	return alert, nil
}

// notifyRole fans the alert out to every user holding the role. Delivery
// is fire-and-forget: failures here never roll back persisted state.
func (e *Engine) notifyRole(ctx context.Context, alert *domain.CriticalAlert, role string) {
	if e.dispatcher == nil {
		return
	}

	var recipients []string
	if e.users != nil {
		ids, err := e.users.UserIDsByRole(ctx, role)
		if err != nil {
			e.logger.WithError(err).WithField("role", role).Warn("Failed to resolve alert recipients")
		} else {
			recipients = ids
		}
	}

	e.dispatcher.Dispatch(ctx, alert, recipients)
}
