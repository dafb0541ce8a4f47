package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

type fakeChannel struct {
	mu    sync.Mutex
	name  string
	calls int
	err   error
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(ctx context.Context, alert *domain.CriticalAlert, recipients []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *fakeChannel) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testAlert() *domain.CriticalAlert {
	now := time.Now().UTC()
	return &domain.CriticalAlert{
		ID:         "alert-1",
		Title:      "Critical referral awaiting decision",
		Priority:   domain.AlertPriorityHigh,
		Type:       domain.AlertTypeTimeout,
		TargetRole: domain.RoleClinician,
		Status:     domain.AlertStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDispatch_DeliversToAllChannels(t *testing.T) {
	first := &fakeChannel{name: "first"}
	second := &fakeChannel{name: "second"}
	d := NewDispatcher(quietLogger(), domain.NotifyConfig{}, first, second)

	d.Dispatch(context.Background(), testAlert(), []string{"clin-1"})

	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 1, second.callCount())
}

func TestDispatch_FailingChannelDoesNotBlockOthers(t *testing.T) {
	failing := &fakeChannel{name: "failing", err: errors.New("endpoint down")}
	healthy := &fakeChannel{name: "healthy"}
	d := NewDispatcher(quietLogger(), domain.NotifyConfig{}, failing, healthy)

	d.Dispatch(context.Background(), testAlert(), nil)

	assert.Equal(t, 1, failing.callCount())
	assert.Equal(t, 1, healthy.callCount())
}

func TestDispatch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	failing := &fakeChannel{name: "failing", err: errors.New("endpoint down")}
	d := NewDispatcher(quietLogger(), domain.NotifyConfig{BreakerMaxFails: 3}, failing)

	for i := 0; i < 10; i++ {
		d.Dispatch(context.Background(), testAlert(), nil)
	}

	// After three consecutive failures the breaker opens and the channel
	// stops being invoked.
	assert.Equal(t, 3, failing.callCount())
}

func TestWebhookChannel(t *testing.T) {
	var mu sync.Mutex
	var received []*http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	channel := NewWebhookChannel("webhook", server.URL, 5*time.Second)
	require.Equal(t, "webhook", channel.Name())

	err := channel.Send(context.Background(), testAlert(), []string{"clin-1", "clin-2"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, http.MethodPost, received[0].Method)
	assert.Equal(t, "application/json", received[0].Header.Get("Content-Type"))
}

func TestWebhookChannel_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	channel := NewWebhookChannel("webhook", server.URL, 5*time.Second)
	err := channel.Send(context.Background(), testAlert(), nil)
	assert.Error(t, err)
}
