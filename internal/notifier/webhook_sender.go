// Package notifier delivers approval-workflow notifications to the
// platform team over generic HTTP webhooks.
package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/types"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxRetries            = 2
	userAgent             = "steward-controller/v1"
)

// Envelope is the JSON payload POSTed to the platform-team endpoint.
type Envelope struct {
	// Type identifies the notification kind.
	Type string `json:"type"`
	// SchemaVersion allows consumers to detect breaking changes.
	SchemaVersion string `json:"schemaVersion"`
	// Timestamp is the RFC3339 time the notification was sent.
	Timestamp string `json:"timestamp"`
	// Request is the approval request awaiting review.
	Request types.ApprovalRequest `json:"request"`
}

// WebhookSender POSTs approval-request notifications to a configured URL.
// It implements approval.Notifier: delivery is synchronous from the
// manager's perspective so a notification failure keeps the request in
// submitted for later retry.
type WebhookSender struct {
	httpClient *http.Client
	logger     *zap.Logger
	url        string
	authToken  string
}

// WebhookSenderConfig holds the configuration for creating a WebhookSender.
type WebhookSenderConfig struct {
	URL                string
	TimeoutSeconds     int
	InsecureSkipVerify bool
	// AuthToken is a pre-resolved bearer token. Stored at construction
	// time; rotation requires a controller restart.
	AuthToken string
}

// NewWebhookSender creates a WebhookSender. Returns an error if the URL is invalid.
func NewWebhookSender(logger *zap.Logger, cfg WebhookSenderConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = defaultWebhookTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user-configured
		logger.Warn("Webhook TLS certificate verification is disabled",
			zap.String("url", RedactURL(cfg.URL)))
	}

	return &WebhookSender{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:    logger.Named("webhook-sender"),
		url:       cfg.URL,
		authToken: cfg.AuthToken,
	}, nil
}

// NotifySubmission implements approval.Notifier.
func (ws *WebhookSender) NotifySubmission(ctx context.Context, req types.ApprovalRequest) error {
	envelope := Envelope{
		Type:          "steward.approval.submitted",
		SchemaVersion: "1",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Request:       req,
	}
	return ws.doSend(ctx, envelope)
}

// doSend performs the HTTP POST with retry logic.
func (ws *WebhookSender) doSend(ctx context.Context, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		notifySendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries + 1 {
		if attempt > 0 {
			// Linear backoff: 1s, 2s.
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				notifySendTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			}
			notifySendTotal.WithLabelValues("retry").Inc()
		}

		lastErr = ws.doPost(ctx, body)
		if lastErr == nil {
			return nil
		}

		// Only retry transient failures (5xx, connection issues).
		if !isRetryable(lastErr) {
			notifySendTotal.WithLabelValues("error").Inc()
			return lastErr
		}

		ws.logger.Debug("Notification transient failure, will retry",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	notifySendTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("notification failed after %d attempts: %w", maxRetries+1, lastErr)
}

// doPost executes a single HTTP POST request.
func (ws *WebhookSender) doPost(ctx context.Context, body []byte) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if ws.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+ws.authToken)
	}

	resp, err := ws.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		notifySendDuration.WithLabelValues("error").Observe(duration)
		return &sendError{err: err, retryable: true}
	}
	defer func() {
		// Drain and close body to reuse connections.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		notifySendTotal.WithLabelValues("success").Inc()
		notifySendDuration.WithLabelValues("success").Observe(duration)
		return nil
	}

	notifySendDuration.WithLabelValues("error").Observe(duration)
	return &sendError{
		err:       fmt.Errorf("webhook returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= 500,
	}
}

// sendError wraps an error with a retryable flag.
type sendError struct {
	err       error
	retryable bool
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

// isRetryable returns true if the error is a transient failure worth retrying.
func isRetryable(err error) bool {
	var se *sendError
	if errors.As(err, &se) {
		return se.retryable
	}
	// Unknown errors (connection refused, DNS, etc.) are retryable.
	return true
}

// RedactURL masks credentials in a URL for safe logging.
// It redacts userinfo passwords and query parameter values.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	redacted := u.Redacted()
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		r, err := url.Parse(redacted)
		if err != nil {
			return redacted
		}
		r.RawQuery = q.Encode()
		return r.String()
	}
	return redacted
}
