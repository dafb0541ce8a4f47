package alerting

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

// recordingDispatcher captures every dispatched alert with its recipients.
type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []dispatchedAlert
}

type dispatchedAlert struct {
	alert      *domain.CriticalAlert
	recipients []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, alert *domain.CriticalAlert, recipients []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, dispatchedAlert{alert: alert, recipients: recipients})
}

type engineFixture struct {
	engine     *Engine
	alerts     *MemoryAlertStore
	referrals  *MemoryReferralSource
	dispatcher *recordingDispatcher
	now        time.Time
}

func testAlertsConfig() domain.AlertsConfig {
	return domain.AlertsConfig{
		TimeoutAfter:      30 * time.Minute,
		TimeoutExpiry:     2 * time.Hour,
		EscalateAfter:     2 * time.Hour,
		AutoEscalateAfter: 15 * time.Minute,
	}
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &engineFixture{
		alerts:     NewMemoryAlertStore(),
		referrals:  NewMemoryReferralSource(),
		dispatcher: &recordingDispatcher{},
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(logger, f.alerts, f.referrals, StaticUserDirectory{
		domain.RoleClinician:     {"clin-1", "clin-2"},
		domain.RoleAdministrator: {"admin-1"},
	}, f.dispatcher, testAlertsConfig())
	f.engine.nowFn = func() time.Time { return f.now }
	return f
}

func (f *engineFixture) addCriticalReferral(id string, age time.Duration) {
	f.referrals.Add(&domain.Referral{
		ID:        id,
		Priority:  domain.PriorityCritical,
		Decision:  domain.OutcomeNone,
		CreatedAt: f.now.Add(-age),
	})
}

func TestSweep_CreatesTimeoutAlert(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", 31*time.Minute)

	touched, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, touched, 1)

	alert := touched[0]
	assert.Equal(t, domain.AlertTypeTimeout, alert.Type)
	assert.Equal(t, domain.AlertPriorityHigh, alert.Priority)
	assert.Equal(t, domain.RoleClinician, alert.TargetRole)
	assert.Equal(t, domain.AlertStatusPending, alert.Status)
	assert.Equal(t, "REF-1", alert.SourceReferralID)
	assert.True(t, alert.ActionRequired)
	require.NotNil(t, alert.ExpiresAt)
	assert.Equal(t, f.now.Add(2*time.Hour), *alert.ExpiresAt)

	require.Len(t, f.dispatcher.dispatched, 1)
	assert.Equal(t, []string{"clin-1", "clin-2"}, f.dispatcher.dispatched[0].recipients)
}

func TestSweep_FreshReferralUntouched(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", 10*time.Minute)

	touched, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, touched)
	assert.Empty(t, f.dispatcher.dispatched)
}

func TestSweep_Idempotent(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", 45*time.Minute)

	first, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)

	pending, err := f.alerts.ListByStatus(context.Background(), domain.AlertStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSweep_EscalationJoinsTimeout(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", 3*time.Hour)

	touched, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, touched, 2)

	byType := map[domain.AlertType]*domain.CriticalAlert{}
	for _, alert := range touched {
		byType[alert.Type] = alert
	}

	escalation := byType[domain.AlertTypeEscalation]
	require.NotNil(t, escalation)
	assert.Equal(t, domain.AlertPriorityCritical, escalation.Priority)
	assert.Equal(t, domain.RoleAdministrator, escalation.TargetRole)
	assert.Nil(t, escalation.ExpiresAt)

	timeout := byType[domain.AlertTypeTimeout]
	require.NotNil(t, timeout)
	assert.NotNil(t, timeout.ExpiresAt)
}

func TestSweep_AutoEscalatesStalePendingCritical(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", 3*time.Hour)

	first, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	// 20 minutes later the escalation alert is still pending, which is past
	// the auto-escalation delay.
	f.now = f.now.Add(20 * time.Minute)
	second, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)

	escalated := second[0]
	assert.Equal(t, domain.AlertStatusEscalated, escalated.Status)
	assert.Equal(t, domain.RoleAdministrator, escalated.TargetRole)
	require.NotNil(t, escalated.EscalatedAt)
	assert.Equal(t, f.now, *escalated.EscalatedAt)
}

func TestSweep_AcknowledgedAlertNotAutoEscalated(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", 3*time.Hour)

	first, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	for _, alert := range first {
		if alert.Priority == domain.AlertPriorityCritical {
			_, err := f.engine.Acknowledge(context.Background(), alert.ID, "admin-1")
			require.NoError(t, err)
		}
	}
	// The referral gets its decision, so the next sweep only evaluates the
	// alerts already open.
	f.referrals.Decide("REF-1", domain.OutcomeAccepted)

	f.now = f.now.Add(time.Hour)
	second, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestAcknowledge(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", time.Hour)

	touched, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	alertID := touched[0].ID

	acked, err := f.engine.Acknowledge(context.Background(), alertID, "clin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusAcknowledged, acked.Status)
	assert.Equal(t, "clin-1", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)

	// A second acknowledge is an invalid transition.
	_, err = f.engine.Acknowledge(context.Background(), alertID, "clin-2")
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestResolve(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", time.Hour)

	touched, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	alertID := touched[0].ID

	t.Run("from pending", func(t *testing.T) {
		resolved, err := f.engine.Resolve(context.Background(), alertID, "clin-1")
		require.NoError(t, err)
		assert.Equal(t, domain.AlertStatusResolved, resolved.Status)
		assert.Equal(t, "clin-1", resolved.ResolvedBy)
	})

	t.Run("resolved is terminal", func(t *testing.T) {
		_, err := f.engine.Resolve(context.Background(), alertID, "clin-1")
		assert.True(t, domain.IsInvalidTransition(err))

		_, err = f.engine.Acknowledge(context.Background(), alertID, "clin-1")
		assert.True(t, domain.IsInvalidTransition(err))
	})
}

func TestResolve_FromAcknowledged(t *testing.T) {
	f := newEngineFixture(t)
	f.addCriticalReferral("REF-1", time.Hour)

	touched, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	alertID := touched[0].ID

	_, err = f.engine.Acknowledge(context.Background(), alertID, "clin-1")
	require.NoError(t, err)

	resolved, err := f.engine.Resolve(context.Background(), alertID, "clin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusResolved, resolved.Status)
}

func TestTransition_UnknownAlert(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Acknowledge(context.Background(), "no-such-alert", "clin-1")
	assert.True(t, domain.IsNotFound(err))
}

func TestRaise(t *testing.T) {
	f := newEngineFixture(t)

	alert, err := f.engine.Raise(context.Background(), &domain.CriticalAlert{
		Title:      "Database degraded",
		Message:    "classification writes are slow",
		Type:       domain.AlertTypeSystem,
		Priority:   domain.AlertPriorityMedium,
		TargetRole: domain.RoleAdministrator,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, domain.AlertStatusPending, alert.Status)

	require.Len(t, f.dispatcher.dispatched, 1)
	assert.Equal(t, []string{"admin-1"}, f.dispatcher.dispatched[0].recipients)
}

func TestRaise_DuplicatePendingReturnsExisting(t *testing.T) {
	f := newEngineFixture(t)

	first, err := f.engine.Raise(context.Background(), &domain.CriticalAlert{
		Title:            "Manual escalation",
		Type:             domain.AlertTypeEscalation,
		Priority:         domain.AlertPriorityCritical,
		SourceReferralID: "REF-9",
		TargetRole:       domain.RoleAdministrator,
	})
	require.NoError(t, err)

	second, err := f.engine.Raise(context.Background(), &domain.CriticalAlert{
		Title:            "Manual escalation again",
		Type:             domain.AlertTypeEscalation,
		Priority:         domain.AlertPriorityCritical,
		SourceReferralID: "REF-9",
		TargetRole:       domain.RoleAdministrator,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRaise_RejectsUnknownType(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Raise(context.Background(), &domain.CriticalAlert{
		Title: "bad",
		Type:  domain.AlertType("nonsense"),
	})
	assert.True(t, domain.IsValidation(err))
}
