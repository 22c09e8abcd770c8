package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookChannel POSTs messages as JSON to a generic endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel validates the destination up front so a bad URL
// fails at startup, not at first alert.
func NewWebhookChannel(rawURL string) (*WebhookChannel, error) {
	if err := validateWebhookURL(rawURL); err != nil {
		return nil, err
	}
	return &WebhookChannel{
		url:    rawURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body := map[string]any{
		"kind":  msg.Kind,
		"title": msg.Title,
		"body":  msg.Body,
		"ts":    time.Now().Format(time.RFC3339),
	}
	if msg.Event != nil {
		body["event"] = msg.Event
		body["suggestions"] = msg.Suggestions
	}
	if msg.Summary != nil {
		body["summary"] = msg.Summary
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	// Transient failures get two retries; 4xx is a permanent error.
	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook returned %s", resp.Status)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("webhook returned %s", resp.Status))
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 2), ctx)
	return backoff.Retry(post, bo)
}

// validateWebhookURL checks that the webhook URL uses http/https and does not
// target localhost, link-local, or cloud metadata endpoints.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	blocked := []string{"169.254.169.254", "metadata.google.internal", "localhost", "127.0.0.1", "::1", "[::1]"}
	for _, b := range blocked {
		if host == b {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	return nil
}
