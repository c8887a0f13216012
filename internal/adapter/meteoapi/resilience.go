package meteoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/meteoci/station-export/internal/domain"
)

// resilience bundles the circuit breaker and retry policy shared by
// every API call. 429 and 5xx responses and transport errors are
// retried with exponential backoff; other non-2xx responses fail fast.
type resilience struct {
	breaker         *gobreaker.CircuitBreaker
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

func newResilience(logger *slog.Logger) resilience {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meteoapi",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return resilience{
		breaker:         cb,
		maxRetries:      3,
		initialInterval: 200 * time.Millisecond,
		maxInterval:     2 * time.Second,
	}
}

// retryableError marks a response worth retrying (rate limit or server
// error).
type retryableError struct {
	status int
	msg    string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.msg)
}

// do executes one API call with retries, backoff, and the circuit
// breaker, returning the raw response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	reqID := uuid.NewString()[:8]
	start := time.Now()
	defer func() {
		c.metrics.APIRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	backoff := c.resilience.initialInterval
	var lastErr error

	for attempt := 0; attempt <= c.resilience.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := c.resilience.breaker.Execute(func() (any, error) {
			return c.doOnce(ctx, method, fullURL, path, body)
		})
		if err == nil {
			c.logger.Debug("api request ok", "request_id", reqID, "method", method, "path", path, "attempt", attempt)
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ServiceError{Endpoint: path, Msg: "service temporarily unavailable (circuit open)"}
		}

		var svcErr *domain.ServiceError
		if errors.As(err, &svcErr) {
			// Client-side errors are not transient; fail fast.
			return nil, svcErr
		}

		lastErr = err
		c.logger.Debug("api request failed, retrying",
			"request_id", reqID, "method", method, "path", path, "attempt", attempt, "error", err)

		if attempt < c.resilience.maxRetries {
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, c.resilience.maxInterval)
		}
	}

	var re *retryableError
	if errors.As(lastErr, &re) {
		return nil, &domain.ServiceError{Endpoint: path, Status: re.status, Msg: re.msg}
	}
	return nil, &domain.ServiceError{Endpoint: path, Msg: lastErr.Error()}
}

// doOnce performs a single HTTP exchange. Retryable failures are
// reported as retryableError so the breaker counts them; other non-2xx
// statuses map straight to ServiceError.
func (c *Client) doOnce(ctx context.Context, method, fullURL, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &retryableError{status: resp.StatusCode, msg: normalizeMessage(data, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &domain.ServiceError{Endpoint: path, Status: resp.StatusCode, Msg: normalizeMessage(data, resp.StatusCode)}
	}
	return data, nil
}

// normalizeMessage extracts an error message from a response body:
// structured {message} first, then plain text, then the status text.
func normalizeMessage(body []byte, status int) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
		return text
	}
	return http.StatusText(status)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
