// Package audit provides the append-only classification audit trail.
// Every triage decision is persisted with its inputs, sub-scores, the
// weight-vector version used and the result, for later accuracy analysis
// and drift correction.
package audit

import (
	"context"
	"time"

	"github.com/referral-triage-server/internal/domain"
)

// Store defines the interface for classification audit storage.
type Store interface {
	// Record appends a classification decision. Decisions are immutable;
	// Record never updates an existing row.
	Record(ctx context.Context, result *domain.ClassificationResult) error

	// RecordOutcome attaches the eventual clinical decision to a prior
	// classification. Only the outcome column changes; the decision data
	// itself stays immutable.
	RecordOutcome(ctx context.Context, classificationID string, outcome domain.DecisionOutcome) error

	// Get returns a classification by id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.ClassificationResult, error)

	// LastForReferral returns the most recent classification for a
	// referral, or domain.ErrNotFound.
	LastForReferral(ctx context.Context, referralID string) (*domain.ClassificationResult, error)

	// FetchForPeriod returns classifications in [start, end), oldest first.
	FetchForPeriod(ctx context.Context, start, end time.Time) ([]*domain.ClassificationResult, error)

	// Accuracy computes correctness over [start, end): CRITICAL->accepted
	// and ROUTINE->rejected count as correct, everything else with a
	// recorded outcome is an error, undecided rows are excluded.
	Accuracy(ctx context.Context, start, end time.Time) (*domain.AccuracyReport, error)

	// Close closes the store and releases resources.
	Close() error
}
