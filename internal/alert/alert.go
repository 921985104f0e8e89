// Package alert delivers operator-facing notifications. Delivery is best
// effort: sink failures are logged and never propagate, so a broken alert
// channel cannot abort a failover.
package alert

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notifier emits one human-readable alert message.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(_ context.Context, message string) {
	n.logger.Warn("alert", zap.String("message", message))
}

// WebhookNotifier posts alerts as plain text to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Notify posts the message. Failures are logged, not returned.
func (n *WebhookNotifier) Notify(ctx context.Context, message string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		n.logger.Error("alert webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error("alert webhook delivery failed", zap.String("url", n.url), zap.Error(err))
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		n.logger.Error("alert webhook rejected",
			zap.String("url", n.url),
			zap.Int("status", resp.StatusCode))
		return
	}
	n.logger.Info("alert delivered", zap.String("url", n.url))
}

// MultiNotifier fans one alert out to every sink.
type MultiNotifier []Notifier

// Notify delivers to each sink in order.
func (m MultiNotifier) Notify(ctx context.Context, message string) {
	for _, n := range m {
		n.Notify(ctx, message)
	}
}
