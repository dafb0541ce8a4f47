package domain

import (
	"context"
	"time"
)

// WeightStore persists versioned weight vectors. Vectors are immutable;
// activation flips the active flag to a new version in one atomic step.
type WeightStore interface {
	// Insert persists a new vector version. Fails if the version exists.
	Insert(ctx context.Context, v *WeightVector) error

	// Activate marks the given version active and deactivates all others
	// atomically.
	Activate(ctx context.Context, version int64) error

	// Active returns the currently active vector, or ErrNoActiveWeights.
	Active(ctx context.Context) (*WeightVector, error)

	// History returns all versions, newest first.
	History(ctx context.Context, limit int) ([]*WeightVector, error)
}

// AlertStore persists critical alerts and their lifecycle transitions.
type AlertStore interface {
	Create(ctx context.Context, alert *CriticalAlert) error
	Get(ctx context.Context, id string) (*CriticalAlert, error)
	Update(ctx context.Context, alert *CriticalAlert) error

	// FindPending returns the pending alert for a (source, type) pair, or
	// nil when none exists. This backs duplicate-alert suppression.
	FindPending(ctx context.Context, sourceReferralID string, alertType AlertType) (*CriticalAlert, error)

	// ListByStatus returns alerts in the given status, oldest first.
	ListByStatus(ctx context.Context, status AlertStatus) ([]*CriticalAlert, error)
}

// ReferralSource exposes the referral state the escalation engine sweeps:
// critical referrals still awaiting a clinical decision.
type ReferralSource interface {
	ListUndecidedCritical(ctx context.Context, createdBefore time.Time) ([]*Referral, error)
}

// UserDirectory resolves the users holding a role, for escalation fan-out.
type UserDirectory interface {
	UserIDsByRole(ctx context.Context, role string) ([]string, error)
}

// NotificationDispatcher hands created or escalated alerts to delivery
// channels (email/SMS/WebSocket collaborators). Dispatch is fire-and-forget
// from the core's perspective: delivery failures are the dispatcher's to
// log and must never surface to the caller.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, alert *CriticalAlert, recipients []string)
}
