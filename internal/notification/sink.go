package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Sink delivers a channel message to an external alert channel. Delivery is
// fire-and-forget: the caller logs failures but never blocks a poll on them.
type Sink interface {
	SendChannelMessage(ctx context.Context, channel, text string, metadata map[string]any) error
}

// WebhookSink posts channel messages as JSON to a configured webhook.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook-backed sink.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendChannelMessage posts the message to the webhook.
func (s *WebhookSink) SendChannelMessage(ctx context.Context, channel, text string, metadata map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"channel":  channel,
		"text":     text,
		"metadata": metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal channel message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes channel messages to the process log. Used when no webhook
// is configured.
type LogSink struct{}

// SendChannelMessage logs the message.
func (s *LogSink) SendChannelMessage(_ context.Context, channel, text string, _ map[string]any) error {
	log.Printf("[%s] %s", channel, text)
	return nil
}
