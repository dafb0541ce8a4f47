package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/referral-triage-server/internal/domain"
)

// WebhookChannel posts alert payloads to an HTTP endpoint, typically the
// hospital's on-call paging bridge.
type WebhookChannel struct {
	name    string
	url     string
	client  *http.Client
	timeout time.Duration
}

type webhookPayload struct {
	AlertID          string            `json:"alert_id"`
	Type             string            `json:"type"`
	Priority         string            `json:"priority"`
	Status           string            `json:"status"`
	Title            string            `json:"title"`
	Message          string            `json:"message"`
	SourceReferralID string            `json:"source_referral_id,omitempty"`
	TargetRole       string            `json:"target_role"`
	Recipients       []string          `json:"recipients"`
	CreatedAt        time.Time         `json:"created_at"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// NewWebhookChannel creates a webhook channel posting to the given URL.
func NewWebhookChannel(name, url string, timeout time.Duration) *WebhookChannel {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		name:    name,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (w *WebhookChannel) Name() string {
	return w.name
}

func (w *WebhookChannel) Send(ctx context.Context, alert *domain.CriticalAlert, recipients []string) error {
	payload := webhookPayload{
		AlertID:          alert.ID,
		Type:             string(alert.Type),
		Priority:         string(alert.Priority),
		Status:           string(alert.Status),
		Title:            alert.Title,
		Message:          alert.Message,
		SourceReferralID: alert.SourceReferralID,
		TargetRole:       alert.TargetRole,
		Recipients:       recipients,
		CreatedAt:        alert.CreatedAt,
		ExpiresAt:        alert.ExpiresAt,
		Metadata:         alert.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
