// Package notify dispatches fired delegation alerts to an operator
// webhook. This is the service's only outbound channel: a JSON payload
// POSTed to a configured URL with optional HMAC-SHA256 signing.
//
// Dispatch is best-effort. Failures are logged and never propagated —
// a broken webhook must not interfere with event recording.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/delegatewatch/delegatewatch/internal/config"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

// Event is the webhook payload for one fired alert.
type Event struct {
	Type      string        `json:"type"` // always "delegation_ratio_alert"
	Message   string        `json:"message"`
	Stats     *models.Stats `json:"stats"`
	Timestamp time.Time     `json:"timestamp"`
}

// Service posts alert events to the operator webhook.
type Service struct {
	client *http.Client
	url    string
	secret string
}

// dispatchTimeout bounds one full background dispatch, including
// retries and backoff sleeps.
const dispatchTimeout = 60 * time.Second

// NewService creates the webhook notifier. An empty URL disables dispatch.
func NewService(cfg config.WebhookConfig) *Service {
	return &Service{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    cfg.URL,
		secret: cfg.Secret,
	}
}

// Enabled reports whether a webhook URL is configured.
func (s *Service) Enabled() bool { return s.url != "" }

// NotifyAlert sends a fired alert to the operator webhook. Implements
// alert.Notifier; errors are logged, never returned.
//
// Dispatch runs in a background goroutine with its own deadline,
// detached from the caller's context, so a slow or dead webhook never
// stalls the recording path that triggered the alert.
func (s *Service) NotifyAlert(ctx context.Context, message string, stats *models.Stats) {
	if !s.Enabled() {
		return
	}
	event := Event{
		Type:      "delegation_ratio_alert",
		Message:   message,
		Stats:     stats,
		Timestamp: time.Now().UTC(),
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := s.send(sendCtx, event); err != nil {
			log.Warn().Err(err).Str("url", s.url).Msg("Operator webhook dispatch failed")
			return
		}
		log.Info().Str("url", s.url).Msg("Operator webhook dispatched")
	}()
}

// send posts the event as JSON with optional HMAC-SHA256 signing and up
// to 3 attempts with linear backoff.
func (s *Service) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "DelegateWatch-Webhook/1.0")
		req.Header.Set("X-DelegateWatch-Event", event.Type)
		if s.secret != "" {
			mac := hmac.New(sha256.New, []byte(s.secret))
			mac.Write(body)
			req.Header.Set("X-DelegateWatch-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, s.url)
	}
	return fmt.Errorf("webhook failed after 3 attempts: %w", lastErr)
}
