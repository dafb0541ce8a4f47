// Package api exposes the triage service over HTTP using gin.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
	"github.com/referral-triage-server/internal/middleware"
	"github.com/referral-triage-server/internal/notify"
)

// Classifier runs triage classification for referral features.
type Classifier interface {
	Classify(ctx context.Context, features *domain.ReferralFeatures) (*domain.ClassificationResult, error)
}

// FeedbackSubmitter records clinician corrections.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, referralID, clinicianID string, correctedScore float64, rationale string) (*domain.FeedbackRecord, error)
}

// Tuner runs one weight-tuning pass.
type Tuner interface {
	Run(ctx context.Context) (*domain.TuningOutcome, error)
}

// WeightsProvider exposes the active weight vector.
type WeightsProvider interface {
	Active() (*domain.WeightVector, error)
}

// AlertService covers the alert lifecycle operations the API exposes.
type AlertService interface {
	Sweep(ctx context.Context) ([]*domain.CriticalAlert, error)
	Acknowledge(ctx context.Context, alertID, userID string) (*domain.CriticalAlert, error)
	Resolve(ctx context.Context, alertID, userID string) (*domain.CriticalAlert, error)
}

// AuditReader exposes the audit queries the API serves.
type AuditReader interface {
	Accuracy(ctx context.Context, start, end time.Time) (*domain.AccuracyReport, error)
	LastForReferral(ctx context.Context, referralID string) (*domain.ClassificationResult, error)
	RecordOutcome(ctx context.Context, classificationID string, outcome domain.DecisionOutcome) error
}

// DecisionRecorder records clinical decisions against referrals.
type DecisionRecorder interface {
	SetDecision(ctx context.Context, referralID string, decision domain.DecisionOutcome) error
}

// Deps bundles the collaborators the server routes to.
type Deps struct {
	Classifier Classifier
	Feedback   FeedbackSubmitter
	Tuner      Tuner
	Weights    WeightsProvider
	Alerts     AlertService
	AlertStore domain.AlertStore
	Audit      AuditReader
	Referrals  DecisionRecorder
	WSHub      *notify.WebSocketHub
	DBHealth   func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	logger *logrus.Logger
	config *domain.Config
	deps   Deps
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *domain.Config, deps Deps) *Server {
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	if config.Server.RateLimitRPS > 0 {
		router.Use(middleware.RateLimit(config.Server.RateLimitRPS, config.Server.RateLimitBurst))
	}

	server := &Server{
		logger: logger,
		config: config,
		deps:   deps,
		router: router,
	}

	server.setupRoutes()

	return server
}

// Router returns the underlying gin engine. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.deps.WSHub != nil {
		s.router.GET("/ws/alerts", func(c *gin.Context) {
			s.deps.WSHub.HandleUpgrade(c.Writer, c.Request)
		})
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/triage/classify", s.handleClassify)
		v1.POST("/feedback", s.handleFeedback)
		v1.POST("/weights/tune", s.handleTune)
		v1.GET("/weights/active", s.handleActiveWeights)
		v1.POST("/alerts/sweep", s.handleSweep)
		v1.GET("/alerts", s.handleListAlerts)
		v1.POST("/alerts/:id/acknowledge", s.handleAcknowledge)
		v1.POST("/alerts/:id/resolve", s.handleResolve)
		v1.POST("/referrals/:id/decision", s.handleDecision)
		v1.GET("/stats/accuracy", s.handleAccuracy)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
