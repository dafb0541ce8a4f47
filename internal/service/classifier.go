package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/audit"
	"github.com/referral-triage-server/internal/domain"
)

const defaultResultCacheSize = 1024

// ReferralRecorder tracks referral state so the escalation engine can
// sweep undecided critical referrals later.
type ReferralRecorder interface {
	Upsert(ctx context.Context, referral *domain.Referral) error
}

// ClassifierService performs weighted referral triage: it combines the
// four factor sub-scores with the active weight vector into a priority
// call and writes every decision to the audit trail.
type ClassifierService struct {
	logger    *logrus.Logger
	weights   *Weights
	audit     audit.Store
	referrals ReferralRecorder
	cfg       domain.TriageConfig
	recent    *lru.Cache[string, *domain.ClassificationResult]
}

// NewClassifierService creates a new classifier service.
func NewClassifierService(logger *logrus.Logger, weights *Weights, auditStore audit.Store, cfg domain.TriageConfig) (*ClassifierService, error) {
	size := cfg.ResultCacheSize
	if size <= 0 {
		size = defaultResultCacheSize
	}
	recent, err := lru.New[string, *domain.ClassificationResult](size)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	return &ClassifierService{
		logger:  logger,
		weights: weights,
		audit:   auditStore,
		cfg:     cfg,
		recent:  recent,
	}, nil
}

// WithReferralRecorder registers an optional sink that receives each
// classified referral's priority for later escalation sweeps.
func (c *ClassifierService) WithReferralRecorder(referrals ReferralRecorder) *ClassifierService {
	c.referrals = referrals
	return c
}

// Classify validates the features, scores them against the active weight
// vector and records the decision. Malformed input surfaces immediately as
// a ValidationError; a failed audit write blocks the caller rather than
// letting an unrecorded priority escape.
func (c *ClassifierService) Classify(ctx context.Context, features *domain.ReferralFeatures) (*domain.ClassificationResult, error) {
	if err := features.Validate(); err != nil {
		return nil, err
	}

	vector, err := c.weights.Active()
	if err != nil {
		return nil, err
	}

	result := Evaluate(features, vector, c.cfg)
	result.ID = uuid.NewString()
	result.ClassifiedAt = time.Now().UTC()

	if err := c.audit.Record(ctx, result); err != nil {
		return nil, fmt.Errorf("recording classification: %w", err)
	}
	c.recent.Add(features.ReferralID, result)

	if c.referrals != nil {
		referral := &domain.Referral{
			ID:        features.ReferralID,
			Priority:  result.Priority,
			Decision:  domain.OutcomeNone,
			CreatedAt: result.ClassifiedAt,
		}
		if err := c.referrals.Upsert(ctx, referral); err != nil {
			c.logger.WithError(err).WithField("referral_id", features.ReferralID).
				Warn("Failed to record referral for escalation tracking")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"referral_id":    features.ReferralID,
		"priority":       result.Priority,
		"score":          result.Score,
		"confidence":     result.Confidence,
		"weight_version": result.WeightVersion,
	}).Info("Referral classified")

	return result, nil
}

// LastForReferral returns the most recent classification for a referral,
// serving the clinician-feedback flow. The LRU fronts the audit store.
func (c *ClassifierService) LastForReferral(ctx context.Context, referralID string) (*domain.ClassificationResult, error) {
	if result, ok := c.recent.Get(referralID); ok {
		return result, nil
	}
	return c.audit.LastForReferral(ctx, referralID)
}

// Evaluate is the pure scoring core: identical (features, vector, config)
// always yield an identical priority, score, confidence and breakdown.
// Identity and timestamp are assigned by the caller.
func Evaluate(features *domain.ReferralFeatures, vector *domain.WeightVector, cfg domain.TriageConfig) *domain.ClassificationResult {
	subScores := SubScores(features)

	var score float64
	for _, factor := range domain.FactorOrder {
		score += subScores[factor] * vector.Weights[factor]
	}
	score = clamp01(score)

	priority := decidePriority(score, cfg)

	return &domain.ClassificationResult{
		ReferralID:    features.ReferralID,
		Priority:      priority,
		Score:         score,
		Confidence:    confidence(score, cfg),
		SubScores:     subScores,
		WeightVersion: vector.Version,
		Outcome:       domain.OutcomeNone,
	}
}

// decidePriority applies the thresholds. The intermediate zone resolves
// to CRITICAL: over-triage is recoverable, under-triage is not.
func decidePriority(score float64, cfg domain.TriageConfig) domain.Priority {
	switch {
	case score >= cfg.CriticalThreshold:
		return domain.PriorityCritical
	case score <= cfg.RoutineThreshold:
		return domain.PriorityRoutine
	default:
		return domain.PriorityCritical
	}
}

// confidence measures how far the score sits from both decision
// boundaries. Inside the intermediate zone the call is a fail-safe policy
// default, not an evidence-backed one, so confidence stays at the 0.5
// floor; outside it grows with distance from the nearer threshold.
func confidence(score float64, cfg domain.TriageConfig) float64 {
	if score > cfg.RoutineThreshold && score < cfg.CriticalThreshold {
		return 0.5
	}
	distance := math.Min(
		math.Abs(score-cfg.CriticalThreshold),
		math.Abs(score-cfg.RoutineThreshold),
	)
	return math.Min(0.5+2*distance, 1.0)
}
