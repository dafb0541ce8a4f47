package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

// memFeedbackStore is an in-memory feedback.Store for tuner tests.
type memFeedbackStore struct {
	mu      sync.Mutex
	records []*domain.FeedbackRecord
}

func (s *memFeedbackStore) Save(ctx context.Context, record *domain.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memFeedbackStore) Get(ctx context.Context, id string) (*domain.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record, nil
		}
	}
	return nil, domain.NewNotFoundError("feedback", id)
}

func (s *memFeedbackStore) ListSince(ctx context.Context, since time.Time) ([]*domain.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.FeedbackRecord
	for _, record := range s.records {
		if !record.CreatedAt.Before(since) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memFeedbackStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	records, _ := s.ListSince(ctx, since)
	return int64(len(records)), nil
}

func (s *memFeedbackStore) Close() error { return nil }

func testTuningConfig() domain.TuningConfig {
	return domain.TuningConfig{
		BucketWindow:      168 * time.Hour,
		AccuracyWindow:    720 * time.Hour,
		ToleranceBand:     0.2,
		AccuracyTrigger:   0.90,
		AttributionCutoff: 0.3,
	}
}

type tunerFixture struct {
	tuner    *WeightTuner
	weights  *Weights
	audit    *memAuditStore
	feedback *memFeedbackStore
}

func newTunerFixture(t *testing.T) *tunerFixture {
	t.Helper()
	weights := NewWeights(testLogger(), NewMemoryWeightStore(), nil)
	require.NoError(t, weights.Bootstrap(context.Background()))

	auditStore := newMemAuditStore()
	feedbackStore := &memFeedbackStore{}
	return &tunerFixture{
		tuner:    NewWeightTuner(testLogger(), feedbackStore, auditStore, weights, testTuningConfig()),
		weights:  weights,
		audit:    auditStore,
		feedback: feedbackStore,
	}
}

// addFeedback stores a feedback record and, when subScores is non-nil, the
// classification it corrects.
func (f *tunerFixture) addFeedback(t *testing.T, difference float64, subScores map[domain.Factor]float64) {
	t.Helper()
	ctx := context.Background()
	classificationID := uuid.NewString()

	if subScores != nil {
		require.NoError(t, f.audit.Record(ctx, &domain.ClassificationResult{
			ID:           classificationID,
			ReferralID:   uuid.NewString(),
			Priority:     domain.PriorityCritical,
			SubScores:    subScores,
			ClassifiedAt: time.Now().UTC(),
		}))
	}

	require.NoError(t, f.feedback.Save(ctx, &domain.FeedbackRecord{
		ID:               uuid.NewString(),
		ClassificationID: classificationID,
		ReferralID:       uuid.NewString(),
		OriginalScore:    0.8,
		CorrectedScore:   0.8 - difference,
		Difference:       difference,
		CreatedAt:        time.Now().UTC(),
	}))
}

func TestTunerRun_NoFeedbackIsNoOp(t *testing.T) {
	f := newTunerFixture(t)

	outcome, err := f.tuner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Equal(t, 0.95, outcome.RecentAccuracy)
	assert.Zero(t, outcome.SampleSize)

	active, err := f.weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.Version)
}

func TestTunerRun_AccuracyAtTriggerIsNoOp(t *testing.T) {
	f := newTunerFixture(t)

	// 9 of 10 records within tolerance: accuracy exactly 0.90, which does
	// not trip the strictly-below trigger.
	for i := 0; i < 9; i++ {
		f.addFeedback(t, 0.1, nil)
	}
	f.addFeedback(t, 0.5, nil)

	outcome, err := f.tuner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.InDelta(t, 0.90, outcome.RecentAccuracy, 1e-9)
	assert.Equal(t, 10, outcome.SampleSize)
}

func TestTunerRun_BumpsAndRenormalizes(t *testing.T) {
	f := newTunerFixture(t)

	highEverywhere := map[domain.Factor]float64{
		domain.FactorAge:       0.9,
		domain.FactorSeverity:  0.9,
		domain.FactorSpecialty: 0.9,
		domain.FactorSymptoms:  0.9,
	}
	f.addFeedback(t, 0.5, highEverywhere)
	f.addFeedback(t, 0.1, nil)

	outcome, err := f.tuner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, outcome.Changed)
	assert.InDelta(t, 0.5, outcome.RecentAccuracy, 1e-9)
	require.NotNil(t, outcome.Vector)
	assert.Equal(t, int64(2), outcome.Vector.Version)
	assert.InDelta(t, 1.0, outcome.Vector.Sum(), 1e-6)

	// All four factors exceeded their error-rate thresholds, so the new
	// vector is the bumped defaults rescaled: 0.25/0.40/0.23/0.29 over 1.17.
	assert.InDelta(t, 0.25/1.17, outcome.Vector.Weights[domain.FactorAge], 1e-9)
	assert.InDelta(t, 0.40/1.17, outcome.Vector.Weights[domain.FactorSeverity], 1e-9)
	assert.InDelta(t, 0.23/1.17, outcome.Vector.Weights[domain.FactorSpecialty], 1e-9)
	assert.InDelta(t, 0.29/1.17, outcome.Vector.Weights[domain.FactorSymptoms], 1e-9)

	active, err := f.weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(2), active.Version)
}

func TestTunerRun_NoAttributableFactorIsNoOp(t *testing.T) {
	f := newTunerFixture(t)

	lowEverywhere := map[domain.Factor]float64{
		domain.FactorAge:       0.4,
		domain.FactorSeverity:  0.4,
		domain.FactorSpecialty: 0.4,
		domain.FactorSymptoms:  0.4,
	}
	f.addFeedback(t, 0.6, lowEverywhere)

	outcome, err := f.tuner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Contains(t, outcome.Reason, "no factor exceeded")

	active, err := f.weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.Version)
}

func TestTunerRun_SkipsRecordsWithoutClassification(t *testing.T) {
	f := newTunerFixture(t)

	// One miss pointing at a classification that was never recorded. The
	// record is skipped during attribution, leaving nothing to bump.
	f.addFeedback(t, 0.5, nil)

	outcome, err := f.tuner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, outcome.Changed)
	assert.Zero(t, outcome.RecentAccuracy)
}
