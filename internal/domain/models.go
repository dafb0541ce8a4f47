package domain

import (
	"fmt"
	"math"
	"time"
)

// WeightSumTolerance is the permitted deviation of a weight vector's sum
// from 1.0 after normalization.
const WeightSumTolerance = 1e-6

// ReferralFeatures is the immutable per-request input to classification.
// It carries the raw attributes extracted from a referral by the intake
// workflow; nothing here is persisted beyond the request lifetime.
type ReferralFeatures struct {
	ReferralID           string  `json:"referral_id"`
	AgeYears             float64 `json:"age_years"`
	Justification        string  `json:"justification"`
	Motive               string  `json:"motive"`
	PresumptiveDiagnosis string  `json:"presumptive_diagnosis"`
	Specialty            string  `json:"specialty"`
}

// Validate checks the features the classifier refuses to guess about.
// Text fields may legitimately be empty (absence of signal is scored, not
// rejected); age and specialty are mandatory.
func (f *ReferralFeatures) Validate() error {
	if f.ReferralID == "" {
		return NewValidationError("referral_id", "referral id is required", f.ReferralID)
	}
	if math.IsNaN(f.AgeYears) || f.AgeYears < 0 || f.AgeYears > 150 {
		return NewValidationError("age_years", "age must be between 0 and 150", f.AgeYears)
	}
	if f.Specialty == "" {
		return NewValidationError("specialty", "requested specialty is required", f.Specialty)
	}
	return nil
}

// WeightVector is one immutable version of the per-factor weights.
// Exactly one vector is active at a time; the tuner creates new versions
// and never deletes history.
type WeightVector struct {
	Version   int64              `json:"version"`
	Weights   map[Factor]float64 `json:"weights"`
	Active    bool               `json:"active"`
	CreatedAt time.Time          `json:"created_at"`
	Note      string             `json:"note,omitempty"`
}

// DefaultWeights are the bootstrap weights. Severity carries the most
// signal; age and specialty are secondary, symptom clustering in between.
func DefaultWeights() map[Factor]float64 {
	return map[Factor]float64{
		FactorAge:       0.20,
		FactorSeverity:  0.35,
		FactorSpecialty: 0.20,
		FactorSymptoms:  0.25,
	}
}

// NewDefaultWeightVector returns the version-1 bootstrap vector.
func NewDefaultWeightVector() *WeightVector {
	return &WeightVector{
		Version:   1,
		Weights:   DefaultWeights(),
		Active:    true,
		CreatedAt: time.Now().UTC(),
		Note:      "bootstrap defaults",
	}
}

// Sum returns the total of all factor weights.
func (w *WeightVector) Sum() float64 {
	var sum float64
	for _, v := range w.Weights {
		sum += v
	}
	return sum
}

// Normalize rescales the weights so they sum to 1.0.
func (w *WeightVector) Normalize() error {
	sum := w.Sum()
	if sum <= 0 {
		return fmt.Errorf("cannot normalize weight vector %d: non-positive sum %f", w.Version, sum)
	}
	for f, v := range w.Weights {
		w.Weights[f] = v / sum
	}
	return nil
}

// Validate checks the Σ=1 invariant and that every canonical factor is
// present with a non-negative weight.
func (w *WeightVector) Validate() error {
	for _, f := range FactorOrder {
		v, ok := w.Weights[f]
		if !ok {
			return NewValidationError("weights", fmt.Sprintf("missing factor %q", f), nil)
		}
		if v < 0 || math.IsNaN(v) {
			return NewValidationError("weights", fmt.Sprintf("invalid weight for factor %q", f), v)
		}
	}
	if math.Abs(w.Sum()-1.0) > WeightSumTolerance {
		return NewValidationError("weights", "weights must sum to 1.0", w.Sum())
	}
	return nil
}

// Clone returns a deep copy, used when deriving a new version from the
// active vector.
func (w *WeightVector) Clone() *WeightVector {
	weights := make(map[Factor]float64, len(w.Weights))
	for f, v := range w.Weights {
		weights[f] = v
	}
	return &WeightVector{
		Version:   w.Version,
		Weights:   weights,
		Active:    w.Active,
		CreatedAt: w.CreatedAt,
		Note:      w.Note,
	}
}

// FeedbackRecord is a clinician's post-hoc correction of a prior
// classification. Records are append-only and never mutated.
type FeedbackRecord struct {
	ID               string    `json:"id"`
	ClassificationID string    `json:"classification_id"`
	ReferralID       string    `json:"referral_id"`
	ClinicianID      string    `json:"clinician_id,omitempty"`
	OriginalScore    float64   `json:"original_score"`
	CorrectedScore   float64   `json:"corrected_score"`
	Difference       float64   `json:"difference"`
	Rationale        string    `json:"rationale,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CriticalAlert is a time-sensitive escalation alert for an unanswered
// critical referral (or a manually raised system alert). Mutated only via
// the acknowledge/resolve/escalate transitions.
type CriticalAlert struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Message          string            `json:"message"`
	Priority         AlertPriority     `json:"priority"`
	Type             AlertType         `json:"type"`
	SourceReferralID string            `json:"source_referral_id,omitempty"`
	TargetRole       string            `json:"target_role"`
	AssignedUserID   string            `json:"assigned_user_id,omitempty"`
	Status           AlertStatus       `json:"status"`
	ActionRequired   bool              `json:"action_required"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	AcknowledgedBy   string            `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time        `json:"acknowledged_at,omitempty"`
	ResolvedBy       string            `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time        `json:"resolved_at,omitempty"`
	EscalatedAt      *time.Time        `json:"escalated_at,omitempty"`
}

// Expired reports whether the alert has an expiry in the past.
func (a *CriticalAlert) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Referral is the slice of referral state the alert engine consumes:
// identity, triage priority and the pending/accepted/rejected decision.
// The intake workflow owns the full record.
type Referral struct {
	ID        string           `json:"id"`
	Priority  Priority         `json:"priority"`
	Decision  DecisionOutcome `json:"decision"`
	CreatedAt time.Time       `json:"created_at"`
}

// Undecided reports whether the referral still awaits a clinical decision.
func (r *Referral) Undecided() bool {
	return r.Decision == OutcomeNone
}
