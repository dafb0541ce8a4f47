package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

func TestWeightsBootstrap_SeedsDefaults(t *testing.T) {
	store := NewMemoryWeightStore()
	weights := NewWeights(testLogger(), store, nil)

	require.NoError(t, weights.Bootstrap(context.Background()))

	active, err := weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.Version)
	assert.InDelta(t, 1.0, active.Sum(), 1e-9)
	assert.Equal(t, 0.35, active.Weights[domain.FactorSeverity])

	// The seed is persisted, not just held in memory.
	stored, err := store.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestWeightsBootstrap_KeepsExistingActive(t *testing.T) {
	store := NewMemoryWeightStore()
	existing := domain.NewDefaultWeightVector()
	existing.Version = 7
	require.NoError(t, store.Insert(context.Background(), existing))
	require.NoError(t, store.Activate(context.Background(), 7))

	weights := NewWeights(testLogger(), store, nil)
	require.NoError(t, weights.Bootstrap(context.Background()))

	active, err := weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(7), active.Version)
}

func TestWeightsActive_BeforeBootstrap(t *testing.T) {
	weights := NewWeights(testLogger(), NewMemoryWeightStore(), nil)

	_, err := weights.Active()
	assert.ErrorIs(t, err, domain.ErrNoActiveWeights)
}

func TestWeightsPublish_SwapsActiveVector(t *testing.T) {
	store := NewMemoryWeightStore()
	weights := NewWeights(testLogger(), store, nil)
	require.NoError(t, weights.Bootstrap(context.Background()))

	next := domain.NewDefaultWeightVector()
	next.Version = 2
	next.CreatedAt = time.Now().UTC()
	require.NoError(t, weights.Publish(context.Background(), next))

	active, err := weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(2), active.Version)

	// History keeps the superseded version.
	history, err := store.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestWeightsPublish_RejectsInvalidVector(t *testing.T) {
	weights := NewWeights(testLogger(), NewMemoryWeightStore(), nil)
	require.NoError(t, weights.Bootstrap(context.Background()))

	bad := domain.NewDefaultWeightVector()
	bad.Version = 2
	bad.Weights[domain.FactorAge] = 0.9

	err := weights.Publish(context.Background(), bad)
	assert.ErrorContains(t, err, "refusing to publish")

	active, _ := weights.Active()
	assert.Equal(t, int64(1), active.Version)
}

// failingCache always errors, standing in for an unreachable Redis.
type failingCache struct{}

func (failingCache) GetActive(ctx context.Context) (*domain.WeightVector, error) {
	return nil, errors.New("cache unreachable")
}

func (failingCache) SetActive(ctx context.Context, v *domain.WeightVector) error {
	return errors.New("cache unreachable")
}

func TestWeights_CacheFailuresAreNonFatal(t *testing.T) {
	store := NewMemoryWeightStore()
	weights := NewWeights(testLogger(), store, failingCache{})

	require.NoError(t, weights.Bootstrap(context.Background()))

	next := domain.NewDefaultWeightVector()
	next.Version = 2
	require.NoError(t, weights.Publish(context.Background(), next))

	// Refresh falls back to the store when the cache errors.
	require.NoError(t, weights.Refresh(context.Background()))
	active, err := weights.Active()
	require.NoError(t, err)
	assert.Equal(t, int64(2), active.Version)
}
