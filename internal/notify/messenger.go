package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
)

// Messenger sends outbound messages to a contact over the chat channel.
// Failures are reported as errors and handled by callers as degraded
// delivery, never as lifecycle failures.
type Messenger interface {
	SendText(ctx context.Context, channelID, phone, body string) error
	SendTyping(ctx context.Context, channelID, phone string, d time.Duration) error
}

// NoopMessenger discards outbound messages. Used when no gateway URL is
// configured and in tests that do not assert on delivery.
type NoopMessenger struct{}

func (NoopMessenger) SendText(context.Context, string, string, string) error { return nil }
func (NoopMessenger) SendTyping(context.Context, string, string, time.Duration) error {
	return nil
}

type gatewayMessenger struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewMessenger builds an HTTP client for the message gateway. When the
// gateway URL is empty a no-op messenger is returned.
func NewMessenger(cfg config.NotifyConfig, logger *zap.Logger) Messenger {
	if cfg.GatewayURL == "" {
		logger.Warn("NOTIFY_GATEWAY_URL not provided; outbound messages disabled")
		return NoopMessenger{}
	}
	return &gatewayMessenger{
		baseURL: cfg.GatewayURL,
		client:  &http.Client{Timeout: cfg.ClientTimeout()},
		logger:  logger,
	}
}

type sendTextRequest struct {
	ChannelID string `json:"channelId"`
	Phone     string `json:"phone"`
	Body      string `json:"body"`
}

type sendTypingRequest struct {
	ChannelID  string `json:"channelId"`
	Phone      string `json:"phone"`
	DurationMs int64  `json:"durationMs"`
}

func (m *gatewayMessenger) SendText(ctx context.Context, channelID, phone, body string) error {
	return m.post(ctx, "/messages/text", sendTextRequest{
		ChannelID: channelID,
		Phone:     phone,
		Body:      body,
	})
}

func (m *gatewayMessenger) SendTyping(ctx context.Context, channelID, phone string, d time.Duration) error {
	return m.post(ctx, "/messages/typing", sendTypingRequest{
		ChannelID:  channelID,
		Phone:      phone,
		DurationMs: d.Milliseconds(),
	})
}

func (m *gatewayMessenger) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway responded %d for %s", resp.StatusCode, path)
	}
	return nil
}
