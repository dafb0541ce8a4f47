package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/audit"
	"github.com/referral-triage-server/internal/domain"
	"github.com/referral-triage-server/internal/feedback"
)

// factorAdjustment pairs the per-factor error-rate trigger with the fixed
// weight increment applied when it is exceeded.
type factorAdjustment struct {
	ErrorRateAbove float64
	Increment      float64
}

// factorAdjustments holds the documented bump rules. Severity tolerates
// the most noise before a bump because its keyword table already carries
// the largest weight.
var factorAdjustments = map[domain.Factor]factorAdjustment{
	domain.FactorAge:       {ErrorRateAbove: 0.15, Increment: 0.05},
	domain.FactorSeverity:  {ErrorRateAbove: 0.20, Increment: 0.05},
	domain.FactorSpecialty: {ErrorRateAbove: 0.10, Increment: 0.03},
	domain.FactorSymptoms:  {ErrorRateAbove: 0.15, Increment: 0.04},
}

// Sub-score levels above which a feedback miss is attributed to a factor.
// A record may land in several buckets; attribution is an approximation
// of which signal most likely drove the miss.
var attributionLevels = map[domain.Factor]float64{
	domain.FactorAge:       0.8,
	domain.FactorSeverity:  0.7,
	domain.FactorSpecialty: 0.8,
	domain.FactorSymptoms:  0.7,
}

// WeightTuner periodically re-tunes the weight vector against clinician
// feedback. It is the only writer of weight vectors; it never adjusts more
// than once per run and never deletes history.
type WeightTuner struct {
	logger   *logrus.Logger
	feedback feedback.Store
	audit    audit.Store
	weights  *Weights
	cfg      domain.TuningConfig
	nowFn    func() time.Time
}

// NewWeightTuner creates a new weight tuner.
func NewWeightTuner(logger *logrus.Logger, feedbackStore feedback.Store, auditStore audit.Store, weights *Weights, cfg domain.TuningConfig) *WeightTuner {
	return &WeightTuner{
		logger:   logger,
		feedback: feedbackStore,
		audit:    auditStore,
		weights:  weights,
		cfg:      cfg,
		nowFn:    time.Now,
	}
}

// Run executes one tuning pass. A pass that finds no feedback, healthy
// accuracy or no factor over its error-rate trigger is a no-op: the active
// vector stays untouched and the outcome says why. Malformed individual
// records are logged and skipped, never aborting the run.
func (t *WeightTuner) Run(ctx context.Context) (*domain.TuningOutcome, error) {
	now := t.nowFn().UTC()
	outcome := &domain.TuningOutcome{RanAt: now}

	records, err := t.feedback.ListSince(ctx, now.Add(-t.cfg.AccuracyWindow))
	if err != nil {
		return nil, fmt.Errorf("loading feedback window: %w", err)
	}

	if len(records) == 0 {
		// Assume healthy until proven otherwise; an empty window must not
		// zero or NaN the weights.
		outcome.RecentAccuracy = 0.95
		outcome.Reason = "no feedback in accuracy window"
		t.logger.WithField("window", t.cfg.AccuracyWindow).Info("Weight tuning skipped: no feedback data")
		return outcome, nil
	}

	outcome.SampleSize = len(records)
	outcome.RecentAccuracy = t.recentAccuracy(records)

	if outcome.RecentAccuracy >= t.cfg.AccuracyTrigger {
		outcome.Reason = fmt.Sprintf("recent accuracy %.3f at or above trigger %.2f", outcome.RecentAccuracy, t.cfg.AccuracyTrigger)
		t.logger.WithFields(logrus.Fields{
			"recent_accuracy": outcome.RecentAccuracy,
			"sample_size":     outcome.SampleSize,
		}).Info("Weight tuning skipped: accuracy healthy")
		return outcome, nil
	}

	outcome.ErrorRates = t.errorRates(ctx, records)

	active, err := t.weights.Active()
	if err != nil {
		return nil, err
	}

	next := active.Clone()
	next.Version = active.Version + 1
	next.CreatedAt = now
	next.Note = fmt.Sprintf("auto-tuned: accuracy %.3f over %d records", outcome.RecentAccuracy, outcome.SampleSize)

	bumped := false
	for factor, rule := range factorAdjustments {
		if outcome.ErrorRates[factor] > rule.ErrorRateAbove {
			next.Weights[factor] += rule.Increment
			bumped = true
			t.logger.WithFields(logrus.Fields{
				"factor":     factor,
				"error_rate": outcome.ErrorRates[factor],
				"increment":  rule.Increment,
			}).Info("Bumping factor weight")
		}
	}

	if !bumped {
		outcome.Reason = "accuracy below trigger but no factor exceeded its error-rate threshold"
		t.logger.WithField("error_rates", outcome.ErrorRates).Info("Weight tuning skipped: no attributable factor")
		return outcome, nil
	}

	if err := next.Normalize(); err != nil {
		return nil, fmt.Errorf("renormalizing tuned weights: %w", err)
	}
	if err := t.weights.Publish(ctx, next); err != nil {
		return nil, err
	}

	outcome.Changed = true
	outcome.Reason = "weights adjusted and renormalized"
	outcome.Vector = next
	return outcome, nil
}

// recentAccuracy is the fraction of feedback records whose difference sits
// inside the tolerance band.
func (t *WeightTuner) recentAccuracy(records []*domain.FeedbackRecord) float64 {
	within := 0
	for _, record := range records {
		if record.Difference <= t.cfg.ToleranceBand {
			within++
		}
	}
	return float64(within) / float64(len(records))
}

// errorRates buckets every feedback miss (difference above the attribution
// cutoff) by the sub-scores of its classification, approximating which
// factor drove it. Rates are per-factor miss counts over the full window.
func (t *WeightTuner) errorRates(ctx context.Context, records []*domain.FeedbackRecord) map[domain.Factor]float64 {
	counts := make(map[domain.Factor]int, len(domain.FactorOrder))
	recentCutoff := t.nowFn().UTC().Add(-t.cfg.BucketWindow)
	recentMisses := 0

	for _, record := range records {
		if record.Difference <= t.cfg.AttributionCutoff {
			continue
		}
		if !record.CreatedAt.Before(recentCutoff) {
			recentMisses++
		}

		classification, err := t.audit.Get(ctx, record.ClassificationID)
		if err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"feedback_id":       record.ID,
				"classification_id": record.ClassificationID,
			}).Warn("Skipping feedback record without classification")
			continue
		}

		for factor, level := range attributionLevels {
			if classification.SubScores[factor] >= level {
				counts[factor]++
			}
		}
	}

	t.logger.WithFields(logrus.Fields{
		"recent_misses": recentMisses,
		"bucket_window": t.cfg.BucketWindow,
	}).Debug("Bucketed recent feedback misses")

	rates := make(map[domain.Factor]float64, len(counts))
	for _, factor := range domain.FactorOrder {
		rates[factor] = float64(counts[factor]) / float64(len(records))
	}
	return rates
}
