package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// WeightsCache is an optional read-through cache for the active vector,
// letting multiple instances converge on a newly published version without
// polling the database.
type WeightsCache interface {
	GetActive(ctx context.Context) (*domain.WeightVector, error)
	SetActive(ctx context.Context, v *domain.WeightVector) error
}

// Weights manages the single active weight vector. The vector is shared,
// mutable and low-write: one writer (the tuner) and many readers (every
// classify call). Readers go through an atomic pointer so a concurrent
// classification never observes a half-updated vector.
type Weights struct {
	logger *logrus.Logger
	store  domain.WeightStore
	cache  WeightsCache
	active atomic.Pointer[domain.WeightVector]
}

// NewWeights creates a weights manager. cache may be nil.
func NewWeights(logger *logrus.Logger, store domain.WeightStore, cache WeightsCache) *Weights {
	return &Weights{
		logger: logger,
		store:  store,
		cache:  cache,
	}
}

// Bootstrap loads the active vector, seeding the documented defaults as
// version 1 when the store is empty. Must be called before Active.
func (w *Weights) Bootstrap(ctx context.Context) error {
	vector, err := w.store.Active(ctx)
	if errors.Is(err, domain.ErrNoActiveWeights) {
		vector = domain.NewDefaultWeightVector()
		if err := w.store.Insert(ctx, vector); err != nil {
			return fmt.Errorf("seeding default weight vector: %w", err)
		}
		if err := w.store.Activate(ctx, vector.Version); err != nil {
			return fmt.Errorf("activating default weight vector: %w", err)
		}
		w.logger.WithField("version", vector.Version).Info("Seeded default weight vector")
	} else if err != nil {
		return fmt.Errorf("loading active weight vector: %w", err)
	}

	if err := vector.Validate(); err != nil {
		return fmt.Errorf("active weight vector invalid: %w", err)
	}

	w.active.Store(vector)
	w.cacheActive(ctx, vector)
	return nil
}

// Active returns the current vector. The returned value must be treated
// as read-only; the tuner publishes replacements, never in-place edits.
func (w *Weights) Active() (*domain.WeightVector, error) {
	v := w.active.Load()
	if v == nil {
		return nil, domain.ErrNoActiveWeights
	}
	return v, nil
}

// Publish persists a new vector version, marks it active and atomically
// swaps it in for readers. The previous version is retained for audit.
func (w *Weights) Publish(ctx context.Context, vector *domain.WeightVector) error {
	if err := vector.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid weight vector: %w", err)
	}

	if err := w.store.Insert(ctx, vector); err != nil {
		return fmt.Errorf("persisting weight vector %d: %w", vector.Version, err)
	}
	if err := w.store.Activate(ctx, vector.Version); err != nil {
		return fmt.Errorf("activating weight vector %d: %w", vector.Version, err)
	}

	vector.Active = true
	w.active.Store(vector)
	w.cacheActive(ctx, vector)

	w.logger.WithFields(logrus.Fields{
		"version": vector.Version,
		"weights": vector.Weights,
	}).Info("Published new weight vector")
	return nil
}

// Refresh reloads the active vector from the cache (when present) or the
// store. Used by read-only instances after another instance tunes.
func (w *Weights) Refresh(ctx context.Context) error {
	if w.cache != nil {
		if vector, err := w.cache.GetActive(ctx); err == nil && vector != nil {
			if vector.Validate() == nil {
				w.active.Store(vector)
				return nil
			}
		}
	}

	vector, err := w.store.Active(ctx)
	if err != nil {
		return fmt.Errorf("refreshing active weight vector: %w", err)
	}
	if err := vector.Validate(); err != nil {
		return fmt.Errorf("refreshed weight vector invalid: %w", err)
	}
	w.active.Store(vector)
	return nil
}

func (w *Weights) cacheActive(ctx context.Context, vector *domain.WeightVector) {
	if w.cache == nil {
		return
	}
	if err := w.cache.SetActive(ctx, vector); err != nil {
		// Cache is an optimization; the store stays authoritative.
		w.logger.WithError(err).Warn("Failed to cache active weight vector")
	}
}
