package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/referral-triage-server/internal/domain"
)

// MemoryAlertStore is an in-memory AlertStore used by tests and by the
// offline CLI. It enforces the same pending (source, type) uniqueness the
// database index does.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*domain.CriticalAlert
}

// NewMemoryAlertStore creates an empty in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*domain.CriticalAlert)}
}

// Create stores a new alert, rejecting duplicate pending (source, type)
// pairs.
func (s *MemoryAlertStore) Create(ctx context.Context, alert *domain.CriticalAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.Status == domain.AlertStatusPending && alert.SourceReferralID != "" {
		for _, existing := range s.alerts {
			if existing.Status == domain.AlertStatusPending &&
				existing.SourceReferralID == alert.SourceReferralID &&
				existing.Type == alert.Type {
				return domain.NewValidationError("source_referral_id", "pending alert already exists for source and type", alert.SourceReferralID)
			}
		}
	}

	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// Get returns an alert by id, or domain.ErrNotFound.
func (s *MemoryAlertStore) Get(ctx context.Context, id string) (*domain.CriticalAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, domain.NewNotFoundError("alert", id)
	}
	return cloneAlert(alert), nil
}

// Update replaces a stored alert.
func (s *MemoryAlertStore) Update(ctx context.Context, alert *domain.CriticalAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alert.ID]; !ok {
		return domain.NewNotFoundError("alert", alert.ID)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// FindPending returns the pending alert for (source, type), or nil.
func (s *MemoryAlertStore) FindPending(ctx context.Context, sourceReferralID string, alertType domain.AlertType) (*domain.CriticalAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alert := range s.alerts {
		if alert.Status == domain.AlertStatusPending &&
			alert.SourceReferralID == sourceReferralID &&
			alert.Type == alertType {
			return cloneAlert(alert), nil
		}
	}
	return nil, nil
}

// ListByStatus returns alerts in the given status, oldest first.
func (s *MemoryAlertStore) ListByStatus(ctx context.Context, status domain.AlertStatus) ([]*domain.CriticalAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CriticalAlert
	for _, alert := range s.alerts {
		if alert.Status == status {
			result = append(result, cloneAlert(alert))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneAlert(alert *domain.CriticalAlert) *domain.CriticalAlert {
	clone := *alert
	if alert.Metadata != nil {
		clone.Metadata = make(map[string]string, len(alert.Metadata))
		for k, v := range alert.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// MemoryReferralSource serves referral state from a fixed slice.
type MemoryReferralSource struct {
	mu        sync.RWMutex
	referrals []*domain.Referral
}

// NewMemoryReferralSource creates a referral source over the given slice.
func NewMemoryReferralSource(referrals ...*domain.Referral) *MemoryReferralSource {
	return &MemoryReferralSource{referrals: referrals}
}

// Add appends a referral.
func (s *MemoryReferralSource) Add(referral *domain.Referral) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrals = append(s.referrals, referral)
}

// Decide updates a referral's decision state.
func (s *MemoryReferralSource) Decide(referralID string, decision domain.DecisionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.referrals {
		if r.ID == referralID {
			r.Decision = decision
		}
	}
}

// ListUndecidedCritical returns critical referrals without a decision
// created before the cutoff.
func (s *MemoryReferralSource) ListUndecidedCritical(ctx context.Context, createdBefore time.Time) ([]*domain.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Referral
	for _, r := range s.referrals {
		if r.Priority == domain.PriorityCritical && r.Undecided() && r.CreatedAt.Before(createdBefore) {
			clone := *r
			result = append(result, &clone)
		}
	}
	return result, nil
}

// NopDispatcher discards notifications. Used where alert creation matters
// but delivery does not, such as the offline CLI.
type NopDispatcher struct{}

// Dispatch does nothing.
func (NopDispatcher) Dispatch(ctx context.Context, alert *domain.CriticalAlert, recipients []string) {
}

// StaticUserDirectory maps roles to fixed user id lists.
type StaticUserDirectory map[string][]string

// UserIDsByRole returns the users holding a role.
func (d StaticUserDirectory) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	return d[role], nil
}
