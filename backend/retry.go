package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Rate limit state (shared pause for concurrent chunk workers)
// ---------------------------------------------------------------------------

type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := time.Now().Add(duration)
	if end.After(r.pauseEnd) {
		r.pauseEnd = end
	}
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(remaining, 100*time.Millisecond)):
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Retry loop
// ---------------------------------------------------------------------------

// withRetry runs fn until it succeeds, fails permanently, or the retry
// budget is spent. 429 answers pause every worker sharing rl; 5xx and
// network errors back off exponentially.
func withRetry(ctx context.Context, cfg Config, rl *rateLimitState, fn func() (string, error)) (string, error) {
	maxRetries := cfg.effectiveMaxRetries()
	base := cfg.effectiveBackoff()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if rl != nil {
			if err := rl.waitIfPaused(ctx); err != nil {
				return "", contextError(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return "", contextError(err)
		}

		cfg.debug("%s attempt %d/%d", cfg.displayName(), attempt+1, maxRetries+1)
		text, err := fn()
		if err == nil {
			return text, nil
		}
		lastErr = err

		var wait time.Duration
		var se *StatusError
		switch {
		case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
			wait = se.RetryAfter
			if wait <= 0 {
				wait = backoff(base, attempt)
			}
			if rl != nil {
				rl.pause(wait)
			}
			cfg.log("%s rate limited, waiting %v before retry (attempt %d/%d)", cfg.displayName(), wait, attempt+1, maxRetries)
		case errors.Is(err, ErrTransport):
			wait = backoff(base, attempt)
			cfg.debug("%s: %v, retrying in %v", cfg.displayName(), err, wait)
		default:
			return "", err
		}

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", contextError(ctx.Err())
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("%s: exhausted %d retries: %w", cfg.displayName(), maxRetries, lastErr)
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// transportError classifies an error that happened before any HTTP
// status was received.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// statusError builds the error for a non-2xx answer. A 400/422 that
// complains about the response format while structured output was
// requested becomes ErrUnsupportedFeature.
func statusError(backend string, code int, message string, retryAfter time.Duration, jsonMode bool) error {
	se := &StatusError{Backend: backend, Code: code, Message: message, RetryAfter: retryAfter}
	if jsonMode && (code == http.StatusBadRequest || code == http.StatusUnprocessableEntity) && rejectsFormat(message) {
		return fmt.Errorf("%w: %w", ErrUnsupportedFeature, se)
	}
	return se
}

var formatMarkers = []string{
	"response_format",
	"response format",
	"json_object",
	"json mode",
	"response_mime_type",
	"responsemimetype",
	"invalid format",
	"structured output",
}

func rejectsFormat(message string) bool {
	m := strings.ToLower(message)
	for _, marker := range formatMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// ---------------------------------------------------------------------------
// HTTP client with proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
