package scheduler

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

type fakeTuner struct {
	runs int
}

func (f *fakeTuner) Run(ctx context.Context) (*domain.TuningOutcome, error) {
	f.runs++
	return &domain.TuningOutcome{Reason: "insufficient data"}, nil
}

type fakeSweeper struct {
	sweeps int
}

func (f *fakeSweeper) Sweep(ctx context.Context) ([]*domain.CriticalAlert, error) {
	f.sweeps++
	return nil, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNew_RegistersJobs(t *testing.T) {
	s, err := New(testLogger(), &fakeTuner{}, &fakeSweeper{}, "0 3 * * *", "*/5 * * * *")
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 2)
}

func TestNew_EmptySchedulesDisableJobs(t *testing.T) {
	s, err := New(testLogger(), &fakeTuner{}, &fakeSweeper{}, "", "")
	require.NoError(t, err)
	assert.Empty(t, s.cron.Entries())
}

func TestNew_BadSchedule(t *testing.T) {
	_, err := New(testLogger(), &fakeTuner{}, &fakeSweeper{}, "not a schedule", "")
	assert.Error(t, err)
}

func TestRunJobsDirectly(t *testing.T) {
	tuner := &fakeTuner{}
	sweeper := &fakeSweeper{}
	s, err := New(testLogger(), tuner, sweeper, "0 3 * * *", "*/5 * * * *")
	require.NoError(t, err)

	s.runTuning(tuner)
	s.runSweep(sweeper)

	assert.Equal(t, 1, tuner.runs)
	assert.Equal(t, 1, sweeper.sweeps)
}
