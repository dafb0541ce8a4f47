package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
	"github.com/referral-triage-server/internal/feedback"
)

// ClassificationLookup resolves a referral's most recent classification.
// The classifier service satisfies it.
type ClassificationLookup interface {
	LastForReferral(ctx context.Context, referralID string) (*domain.ClassificationResult, error)
}

// FeedbackService captures clinician corrections against prior
// classifications. Submission is pure data capture: the weight tuner picks
// the records up on its own schedule.
type FeedbackService struct {
	logger          *logrus.Logger
	classifications ClassificationLookup
	store           feedback.Store
}

// NewFeedbackService creates a new feedback service.
func NewFeedbackService(logger *logrus.Logger, classifications ClassificationLookup, store feedback.Store) *FeedbackService {
	return &FeedbackService{
		logger:          logger,
		classifications: classifications,
		store:           store,
	}
}

// Submit records a clinician's corrected score for a referral's last
// classification. Fails with a NotFoundError when the referral was never
// classified; no silent record against nothing.
func (s *FeedbackService) Submit(ctx context.Context, referralID, clinicianID string, correctedScore float64, rationale string) (*domain.FeedbackRecord, error) {
	if referralID == "" {
		return nil, domain.NewValidationError("referral_id", "referral id is required", referralID)
	}
	if correctedScore < 0 || correctedScore > 1 || math.IsNaN(correctedScore) {
		return nil, domain.NewValidationError("corrected_score", "corrected score must be within [0,1]", correctedScore)
	}

	classification, err := s.classifications.LastForReferral(ctx, referralID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("classification for referral", referralID)
		}
		return nil, fmt.Errorf("looking up classification for referral %s: %w", referralID, err)
	}

	record := &domain.FeedbackRecord{
		ID:               uuid.NewString(),
		ClassificationID: classification.ID,
		ReferralID:       referralID,
		ClinicianID:      clinicianID,
		OriginalScore:    classification.Score,
		CorrectedScore:   correctedScore,
		Difference:       math.Abs(classification.Score - correctedScore),
		Rationale:        rationale,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("saving feedback record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"referral_id":       referralID,
		"classification_id": classification.ID,
		"difference":        record.Difference,
	}).Info("Clinician feedback recorded")

	return record, nil
}
