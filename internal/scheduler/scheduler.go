// Package scheduler runs the periodic triage jobs: the nightly weight
// tuning pass and the alert escalation sweep.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/domain"
)

// TuningJob runs one weight-tuning pass.
type TuningJob interface {
	Run(ctx context.Context) (*domain.TuningOutcome, error)
}

// SweepJob runs one alert escalation sweep.
type SweepJob interface {
	Sweep(ctx context.Context) ([]*domain.CriticalAlert, error)
}

// Scheduler wires the tuner and escalation engine onto cron schedules.
type Scheduler struct {
	logger *logrus.Logger
	cron   *cron.Cron
}

// New creates a scheduler with the two jobs registered. Either schedule
// may be empty to disable that job.
func New(logger *logrus.Logger, tuner TuningJob, sweeper SweepJob, tuningSchedule, sweepSchedule string) (*Scheduler, error) {
	s := &Scheduler{
		logger: logger,
		cron:   cron.New(),
	}

	if tuningSchedule != "" && tuner != nil {
		if _, err := s.cron.AddFunc(tuningSchedule, func() { s.runTuning(tuner) }); err != nil {
			return nil, err
		}
	}

	if sweepSchedule != "" && sweeper != nil {
		if _, err := s.cron.AddFunc(sweepSchedule, func() { s.runSweep(sweeper) }); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) runTuning(tuner TuningJob) {
	outcome, err := tuner.Run(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("Scheduled tuning run failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"changed":         outcome.Changed,
		"reason":          outcome.Reason,
		"recent_accuracy": outcome.RecentAccuracy,
	}).Info("Scheduled tuning run completed")
}

func (s *Scheduler) runSweep(sweeper SweepJob) {
	created, err := sweeper.Sweep(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("Scheduled alert sweep failed")
		return
	}

	s.logger.WithField("alerts_created", len(created)).Info("Scheduled alert sweep completed")
}

// Start begins running the registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("entries", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
