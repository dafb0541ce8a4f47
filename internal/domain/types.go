// Package domain contains core business entities and types for medical
// referral triage: weighted priority classification, clinician feedback,
// weight-vector versioning and critical-alert escalation.
package domain

import (
	"errors"
)

// Priority represents the binary triage outcome for a referral.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityRoutine  Priority = "ROUTINE"
)

// Factor identifies one of the four scoring factors. The order of
// FactorOrder is the canonical factor ordering used by weight vectors.
type Factor string

const (
	FactorAge       Factor = "age"
	FactorSeverity  Factor = "severity"
	FactorSpecialty Factor = "specialty"
	FactorSymptoms  Factor = "symptoms"
)

// FactorOrder is the canonical ordering of scoring factors.
var FactorOrder = []Factor{FactorAge, FactorSeverity, FactorSpecialty, FactorSymptoms}

// DecisionOutcome is the eventual clinical decision recorded against a
// classified referral. A CRITICAL call validated by admission is correct;
// a ROUTINE call validated by rejection is correct.
type DecisionOutcome string

const (
	OutcomeNone     DecisionOutcome = "none"
	OutcomeAccepted DecisionOutcome = "accepted"
	OutcomeRejected DecisionOutcome = "rejected"
)

// AlertPriority represents the severity of a critical alert.
type AlertPriority string

const (
	AlertPriorityLow      AlertPriority = "LOW"
	AlertPriorityMedium   AlertPriority = "MEDIUM"
	AlertPriorityHigh     AlertPriority = "HIGH"
	AlertPriorityCritical AlertPriority = "CRITICAL"
)

// AlertType represents the origin rule of a critical alert.
type AlertType string

const (
	AlertTypeTimeout    AlertType = "timeout"
	AlertTypeEscalation AlertType = "escalation"
	AlertTypeSystem     AlertType = "system"
)

// AlertStatus represents the lifecycle state of a critical alert.
// Transitions: pending -> acknowledged -> resolved, and pending -> escalated.
// resolved is terminal.
type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusEscalated    AlertStatus = "escalated"
)

// Role names targeted by escalation alerts.
const (
	RoleClinician     = "clinician"
	RoleAdministrator = "administrator"
)

// Sentinel errors shared across stores and services.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid alert state transition")
	ErrNoActiveWeights   = errors.New("no active weight vector")
)

// IsValid reports whether the priority is one of the two triage outcomes.
func (p Priority) IsValid() bool {
	return p == PriorityCritical || p == PriorityRoutine
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid reports whether the alert status is a known lifecycle state.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusPending, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusEscalated:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved
}

// CanTransitionTo reports whether the state machine allows moving from s
// to next. Acknowledge is only valid from pending; resolve from pending or
// acknowledged; escalate only from pending.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch next {
	case AlertStatusAcknowledged:
		return s == AlertStatusPending
	case AlertStatusResolved:
		return s == AlertStatusPending || s == AlertStatusAcknowledged
	case AlertStatusEscalated:
		return s == AlertStatusPending
	default:
		return false
	}
}

// IsValid reports whether the alert type is known.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeTimeout, AlertTypeEscalation, AlertTypeSystem:
		return true
	default:
		return false
	}
}

// IsCorrect applies the clinically-accepted accuracy convention: a
// CRITICAL classification later accepted, or a ROUTINE classification
// later rejected, counts as a correct call.
func (o DecisionOutcome) IsCorrect(p Priority) bool {
	switch o {
	case OutcomeAccepted:
		return p == PriorityCritical
	case OutcomeRejected:
		return p == PriorityRoutine
	default:
		return false
	}
}
