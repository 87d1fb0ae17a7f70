package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/heirloom/interfaces"
)

// DefaultWebhookTimeout bounds a single delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookMessenger posts messages as JSON to an HTTP endpoint.
type WebhookMessenger struct {
	url     string
	headers map[string]string
	client  *http.Client
	log     *slog.Logger
}

// NewWebhookMessenger creates a messenger for url. Headers are added to every
// request, e.g. an Authorization header for the gateway.
func NewWebhookMessenger(url string, headers map[string]string, timeout time.Duration, log *slog.Logger) *WebhookMessenger {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookMessenger{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Send delivers msg. Any transport error or non-2xx response is a messaging failure.
func (m *WebhookMessenger) Send(ctx context.Context, msg interfaces.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: failed to encode message: %v", interfaces.ErrMessagingFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", interfaces.ErrMessagingFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range m.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s delivery failed: %v", interfaces.ErrMessagingFailure, msg.Channel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s gateway returned %d", interfaces.ErrMessagingFailure, msg.Channel, resp.StatusCode)
	}

	m.log.Debug("Delivered verification message",
		slog.String("channel", string(msg.Channel)),
		slog.String("entity_id", msg.EntityID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))
	return nil
}
