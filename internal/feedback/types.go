// Package feedback provides storage for clinician corrections of triage
// classifications. Records are append-only data capture: no weight change
// happens on submission, the tuner consumes them on its own schedule.
package feedback

import (
	"context"
	"time"

	"github.com/referral-triage-server/internal/domain"
)

// Store defines the interface for feedback record storage.
type Store interface {
	// Save appends a feedback record. Records are immutable; Save never
	// updates an existing row.
	Save(ctx context.Context, record *domain.FeedbackRecord) error

	// Get returns a record by id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.FeedbackRecord, error)

	// ListSince returns records created at or after the given time,
	// newest first.
	ListSince(ctx context.Context, since time.Time) ([]*domain.FeedbackRecord, error)

	// CountSince returns the number of records created at or after the
	// given time.
	CountSince(ctx context.Context, since time.Time) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
