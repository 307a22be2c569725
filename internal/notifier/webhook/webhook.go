// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg notifier.Config) error {
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	switch headers := cfg.Params["headers"].(type) {
	case map[string]string:
		w.headers = headers
	case map[string]any:
		w.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			w.headers[k] = fmt.Sprint(v)
		}
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (w *Webhook) Notify(event core.AlertTriggered) error {
	return w.post(eventToPayload(event))
}

func (w *Webhook) NotifyBatch(events []core.AlertTriggered) error {
	if len(events) == 0 {
		return nil
	}

	payloads := make([]map[string]any, len(events))
	for i, ev := range events {
		payloads[i] = eventToPayload(ev)
	}

	return w.post(map[string]any{
		"type":   "batch",
		"count":  len(events),
		"alerts": payloads,
	})
}

func eventToPayload(ev core.AlertTriggered) map[string]any {
	return map[string]any{
		"type":         "alert_triggered",
		"alert_id":     ev.AlertID,
		"ticker":       ev.Ticker,
		"direction":    ev.Direction,
		"target_price": ev.TargetPrice.String(),
		"price":        ev.Price.String(),
		"note":         ev.Note,
		"summary":      notifier.Summary(ev),
		"triggered_at": ev.TriggeredAt.Format(time.RFC3339),
	}
}

func (w *Webhook) post(payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
