// Package notify fans alerts out to delivery channels (webhook endpoints,
// websocket inboxes). The core treats delivery as fire-and-forget: a
// failing channel is logged and circuit-broken, never propagated.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/referral-triage-server/internal/domain"
)

// Channel delivers one alert to a set of recipients.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *domain.CriticalAlert, recipients []string) error
}

// Dispatcher implements domain.NotificationDispatcher over a set of
// channels, each guarded by its own circuit breaker so one failing
// collaborator cannot slow the sweep down for the rest.
type Dispatcher struct {
	logger   *logrus.Logger
	channels []Channel
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(logger *logrus.Logger, cfg domain.NotifyConfig, channels ...Channel) *Dispatcher {
	maxFails := cfg.BreakerMaxFails
	if maxFails == 0 {
		maxFails = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(channels))
	for _, channel := range channels {
		name := channel.Name()
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFails
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"channel": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Notification channel breaker state changed")
			},
		})
	}

	return &Dispatcher{
		logger:   logger,
		channels: channels,
		breakers: breakers,
	}
}

// Dispatch delivers the alert on every channel. Channel errors are
// logged and not returned: persisted alert state does not depend on
// delivery succeeding.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *domain.CriticalAlert, recipients []string) {
	for _, channel := range d.channels {
		breaker := d.breakers[channel.Name()]
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, channel.Send(ctx, alert, recipients)
		})
		if err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"channel":  channel.Name(),
				"alert_id": alert.ID,
			}).Error("Failed to deliver alert notification")
			continue
		}

		d.logger.WithFields(logrus.Fields{
			"channel":    channel.Name(),
			"alert_id":   alert.ID,
			"recipients": len(recipients),
		}).Debug("Alert notification delivered")
	}
}
