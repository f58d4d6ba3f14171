// Package notify posts plain-text job alerts to a webhook, ntfy style.
// Delivery is best effort: errors are logged and swallowed so an alerting
// outage can never fail a job.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aiprofile/internal/infra"
)

// Webhook sends alerts to a single URL. A nil or empty URL disables it.
type Webhook struct {
	url    string
	client *http.Client
	logger infra.Logger
}

// NewWebhook creates a webhook notifier. url may be empty, in which case
// every call is a no-op.
func NewWebhook(url string, logger infra.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// JobCompleted announces a finished job.
func (w *Webhook) JobCompleted(ctx context.Context, jobID string) {
	w.post(ctx, fmt.Sprintf("profile job %s completed", jobID))
}

// JobFailed announces a terminal job failure.
func (w *Webhook) JobFailed(ctx context.Context, jobID string, detail string) {
	w.post(ctx, fmt.Sprintf("profile job %s failed: %s", jobID, detail))
}

func (w *Webhook) post(ctx context.Context, message string) {
	if w.url == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(message))
	if err != nil {
		w.logger.Warn().Err(err).Msg("notify: build request failed")
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn().Err(err).Msg("notify: webhook unreachable")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.logger.Warn().Int("status", resp.StatusCode).Msg("notify: webhook rejected message")
	}
}
