package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookPayload is the wire shape posted for each provisioning event.
// Host-scoped fields are omitted on run-scoped events and vice versa, so
// receivers can switch on "event" alone.
type webhookPayload struct {
	Event     string          `json:"event"`
	Host      string          `json:"host,omitempty"`
	Status    string          `json:"status,omitempty"`
	Agents    map[string]bool `json:"agents,omitempty"`
	Error     string          `json:"error,omitempty"`
	Hosts     int             `json:"hosts,omitempty"`
	Succeeded int             `json:"succeeded,omitempty"`
	Failed    int             `json:"failed,omitempty"`
	Skipped   int             `json:"skipped,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Webhook posts each provisioning event to a configurable URL, so a run can
// feed dashboards or ticketing without a broker in between.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook notifier. Custom headers (e.g. Authorization)
// are sent with every request.
func NewWebhook(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the provider name for logging.
func (w *Webhook) Name() string { return "webhook" }

// Send posts the event's payload as JSON to the configured URL.
func (w *Webhook) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(webhookPayload{
		Event:     string(event.Type),
		Host:      event.Host,
		Status:    event.Status,
		Agents:    event.Agents,
		Error:     event.Error,
		Hosts:     event.Total,
		Succeeded: event.Succeeded,
		Failed:    event.Failed,
		Skipped:   event.Skipped,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
