// Package gaugexml fetches and parses the river gauge XML feed.
package gaugexml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pegelwacht/pegel-monitor/internal/config"
	"github.com/pegelwacht/pegel-monitor/internal/domain"
	"github.com/pegelwacht/pegel-monitor/internal/observability"
)

// Client retrieves the current gauge reading with retries and an optional
// fallback transport. After a connection-establishment failure on the primary
// URL the client latches onto the fallback URL for all subsequent requests;
// the latch is one-way until ResetFallback is called.
type Client struct {
	primaryURL     string
	fallbackURL    string
	httpClient     *http.Client
	maxRetries     int
	retryDelay     time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
	clock          clockwork.Clock

	mu          sync.Mutex
	useFallback bool
}

// NewClient creates a gauge feed client from config.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		primaryURL:     cfg.SourceURL,
		fallbackURL:    cfg.FallbackURL,
		httpClient:     &http.Client{},
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		attemptTimeout: cfg.FetchTimeout,
		logger:         logger,
		metrics:        metrics,
		clock:          clockwork.NewRealClock(),
	}
}

// FetchCurrentLevel fetches one gauge document and returns its parsed
// Reading. Up to maxRetries sequential attempts are made with linear backoff
// (retryDelay x attempt number) between them. A 2xx body goes straight to the
// parser and ends the sequence, parse errors included; retrying cannot fix a
// malformed document the origin is currently serving.
func (c *Client) FetchCurrentLevel(ctx context.Context) (domain.Reading, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		url := c.currentURL()

		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			return domain.ParseGaugeXML(body)
		}

		lastErr = err
		c.metrics.FetchFailures.WithLabelValues(failureReason(err)).Inc()
		c.logger.Warn("fetch attempt failed",
			"attempt", attempt,
			"url", url,
			"error", err,
		)

		if attempt == 1 && c.fallbackURL != "" && !c.FallbackLatched() && isConnectionFailure(err) {
			c.latchFallback()
		}

		if attempt < c.maxRetries {
			if !c.sleep(ctx, time.Duration(attempt)*c.retryDelay) {
				return domain.Reading{}, ctx.Err()
			}
		}
	}

	return domain.Reading{}, &domain.FetchExhaustedError{Attempts: c.maxRetries, Last: lastErr}
}

// FallbackLatched reports whether the client has switched to the fallback URL.
func (c *Client) FallbackLatched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useFallback
}

// ResetFallback reverts the client to the primary URL.
func (c *Client) ResetFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useFallback = false
	c.metrics.FallbackActive.Set(0)
}

func (c *Client) latchFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useFallback = true
	c.metrics.FallbackActive.Set(1)
	c.logger.Warn("switching to fallback transport", "fallback_url", c.fallbackURL)
}

func (c *Client) currentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useFallback {
		return c.fallbackURL
	}
	return c.primaryURL
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	c.metrics.FetchAttempts.Inc()
	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request gauge feed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

// statusError is a non-2xx response. It never triggers the fallback latch:
// the origin answered, so the transport path works.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.status)
}

// isConnectionFailure classifies a transport error structurally: DNS
// failures, dial errors, and refused/reset connections engage the fallback
// transport. Timeouts do not; the path works, the origin is just slow. A
// message check remains as a last resort for wrapped errors that hide their
// type.
func isConnectionFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}

func failureReason(err error) string {
	var serr *statusError
	if errors.As(err, &serr) {
		return "status"
	}
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if isConnectionFailure(err) {
		return "connection"
	}
	return "other"
}
