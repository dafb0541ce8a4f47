package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/referral-triage-server/internal/domain"
)

type classifyRequest struct {
	ReferralID           string  `json:"referral_id"`
	AgeYears             float64 `json:"age_years"`
	Justification        string  `json:"justification"`
	Motive               string  `json:"motive"`
	PresumptiveDiagnosis string  `json:"presumptive_diagnosis"`
	Specialty            string  `json:"specialty"`
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	features := &domain.ReferralFeatures{
		ReferralID:           req.ReferralID,
		AgeYears:             req.AgeYears,
		Justification:        req.Justification,
		Motive:               req.Motive,
		PresumptiveDiagnosis: req.PresumptiveDiagnosis,
		Specialty:            req.Specialty,
	}

	result, err := s.deps.Classifier.Classify(c.Request.Context(), features)
	if err != nil {
		if domain.IsValidation(err) {
			s.badRequest(c, err.Error())
			return
		}
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type feedbackRequest struct {
	ReferralID     string   `json:"referral_id"`
	ClinicianID    string   `json:"clinician_id"`
	CorrectedScore *float64 `json:"corrected_score"`
	Rationale      string   `json:"rationale"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.CorrectedScore == nil {
		s.badRequest(c, "corrected_score is required")
		return
	}

	record, err := s.deps.Feedback.Submit(c.Request.Context(),
		req.ReferralID, req.ClinicianID, *req.CorrectedScore, req.Rationale)
	if err != nil {
		switch {
		case domain.IsValidation(err):
			s.badRequest(c, err.Error())
		case domain.IsNotFound(err):
			s.notFound(c, err)
		default:
			s.internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleTune(c *gin.Context) {
	outcome, err := s.deps.Tuner.Run(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleActiveWeights(c *gin.Context) {
	vector, err := s.deps.Weights.Active()
	if err != nil {
		if err == domain.ErrNoActiveWeights {
			s.notFound(c, err)
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, vector)
}

func (s *Server) handleSweep(c *gin.Context) {
	created, err := s.deps.Alerts.Sweep(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created": len(created),
		"alerts":  created,
	})
}

func (s *Server) handleListAlerts(c *gin.Context) {
	status := domain.AlertStatus(c.DefaultQuery("status", string(domain.AlertStatusPending)))
	switch status {
	case domain.AlertStatusPending, domain.AlertStatusAcknowledged,
		domain.AlertStatusResolved, domain.AlertStatusEscalated:
	default:
		s.badRequest(c, "unknown alert status: "+string(status))
		return
	}

	alerts, err := s.deps.AlertStore.ListByStatus(c.Request.Context(), status)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.CriticalAlert{}
	}
	c.JSON(http.StatusOK, alerts)
}

type alertActionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleAcknowledge(c *gin.Context) {
	s.handleAlertAction(c, s.deps.Alerts.Acknowledge)
}

func (s *Server) handleResolve(c *gin.Context) {
	s.handleAlertAction(c, s.deps.Alerts.Resolve)
}

func (s *Server) handleAlertAction(c *gin.Context, action func(ctx context.Context, alertID, userID string) (*domain.CriticalAlert, error)) {
	var req alertActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		s.badRequest(c, "user_id is required")
		return
	}

	alert, err := action(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			s.notFound(c, err)
		case domain.IsInvalidTransition(err):
			s.conflict(c, err)
		default:
			s.internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, alert)
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleDecision(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	outcome := domain.DecisionOutcome(req.Decision)
	if outcome != domain.OutcomeAccepted && outcome != domain.OutcomeRejected {
		s.badRequest(c, "decision must be accepted or rejected")
		return
	}

	referralID := c.Param("id")
	ctx := c.Request.Context()

	if err := s.deps.Referrals.SetDecision(ctx, referralID, outcome); err != nil {
		if domain.IsNotFound(err) {
			s.notFound(c, err)
			return
		}
		s.internalError(c, err)
		return
	}

	// Stamp the outcome onto the latest audit entry so accuracy reports
	// pick it up. A referral decided without a prior classification is
	// legal, it just does not feed the accuracy metric.
	if last, err := s.deps.Audit.LastForReferral(ctx, referralID); err == nil {
		if err := s.deps.Audit.RecordOutcome(ctx, last.ID, outcome); err != nil {
			s.logger.WithError(err).WithField("referral_id", referralID).
				Warn("Failed to record outcome on audit entry")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"referral_id": referralID,
		"decision":    outcome,
	})
}

func (s *Server) handleAccuracy(c *gin.Context) {
	end := time.Now().UTC()
	start := end.Add(-30 * 24 * time.Hour)

	if v := c.Query("window"); v != "" {
		window, err := time.ParseDuration(v)
		if err != nil || window <= 0 {
			s.badRequest(c, "invalid window duration")
			return
		}
		start = end.Add(-window)
	}

	report, err := s.deps.Audit.Accuracy(c.Request.Context(), start, end)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	if s.deps.DBHealth != nil {
		if err := s.deps.DBHealth(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	if s.deps.WSHub != nil {
		body["ws_clients"] = s.deps.WSHub.ClientCount()
	}

	c.JSON(code, body)
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":          message,
		"correlation_id": c.GetString("correlation_id"),
	})
}

func (s *Server) notFound(c *gin.Context, err error) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}

func (s *Server) conflict(c *gin.Context, err error) {
	c.JSON(http.StatusConflict, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString("correlation_id"),
	})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":          "internal server error",
		"correlation_id": c.GetString("correlation_id"),
	})
}
