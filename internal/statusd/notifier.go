package statusd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/utils"
)

// SecretHeader carries the configured callback secret
const SecretHeader = "X-Search-Callback-Secret"

// Notifier posts the final search summary to a callback URL
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewNotifier creates a notifier with 3 retries and 1s, 2s, 4s between them
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 30*time.Second, 2, false),
	}
}

// WithRetry overrides the retry count and backoff
func (n *Notifier) WithRetry(maxRetries int, backoff utils.BackoffStrategy) *Notifier {
	n.maxRetries = maxRetries
	n.backoff = backoff
	return n
}

// Send posts summary to callbackURL, retrying on transport errors and non-2xx
// responses. A "{run_id}" placeholder in the URL is replaced by the run id.
// An empty URL is a no-op.
func (n *Notifier) Send(ctx context.Context, callbackURL, callbackSecret string, summary models.Summary) error {
	if callbackURL == "" {
		return nil
	}
	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", summary.RunID)

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", finalURL,
				"run_id", summary.RunID,
				"attempt", attempt,
				"delay", delay)
			if !utils.Pause(n.backoff, attempt-1, ctx.Done()) {
				return ctx.Err()
			}
		}

		lastErr = n.post(ctx, finalURL, callbackSecret, payload)
		if lastErr == nil {
			logger.Info("notification sent successfully", "run_id", summary.RunID)
			return nil
		}
		logger.Warn("notification attempt failed",
			"callback_url", finalURL,
			"run_id", summary.RunID,
			"attempt", attempt+1,
			"error", lastErr)
	}

	return fmt.Errorf("notification failed after %d attempts: %w", n.maxRetries+1, lastErr)
}

func (n *Notifier) post(ctx context.Context, url, secret string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "paramsearch/1.0")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
