package domain

import (
	"time"
)

// ClassificationResult is the outcome of one triage classification:
// the priority call, the weighted score, a confidence measure and the full
// per-factor breakdown for explainability. Immutable once written to the
// audit trail.
type ClassificationResult struct {
	ID            string             `json:"id"`
	ReferralID    string             `json:"referral_id"`
	Priority      Priority           `json:"priority"`
	Score         float64            `json:"score"`
	Confidence    float64            `json:"confidence"`
	SubScores     map[Factor]float64 `json:"sub_scores"`
	WeightVersion int64              `json:"weight_version"`
	Outcome       DecisionOutcome    `json:"outcome"`
	ClassifiedAt  time.Time          `json:"classified_at"`
}

// TuningOutcome reports the result of one weight-tuning run. A run that
// found insufficient data or healthy accuracy is a no-op, which must stay
// distinguishable from "weights changed".
type TuningOutcome struct {
	Changed        bool               `json:"changed"`
	Reason         string             `json:"reason"`
	RecentAccuracy float64            `json:"recent_accuracy"`
	SampleSize     int                `json:"sample_size"`
	ErrorRates     map[Factor]float64 `json:"error_rates,omitempty"`
	Vector         *WeightVector      `json:"vector,omitempty"`
	RanAt          time.Time          `json:"ran_at"`
}

// AccuracyReport summarizes audited classifications against decision
// outcomes over a period.
type AccuracyReport struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Total       int       `json:"total"`
	Decided     int       `json:"decided"`
	Correct     int       `json:"correct"`
	Accuracy    float64   `json:"accuracy"`
}
