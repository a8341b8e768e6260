// Package webhook delivers job events to agent supplied URLs with bounded
// retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/metrics"
)

const (
	// DefaultMaxAttempts is the attempt ceiling of a delivery.
	DefaultMaxAttempts = 4
	// DefaultPerAttemptTimeout bounds a single POST.
	DefaultPerAttemptTimeout = 30 * time.Second
	// DefaultUserAgent identifies the product to receivers.
	DefaultUserAgent = "agenthire-webhook/1.0"

	maxResponseBodyBytes = 4 * 1024
)

// DefaultDelaySchedule is the wait before each attempt; the first is immediate.
var DefaultDelaySchedule = []time.Duration{0, 1 * time.Second, 2 * time.Second, 4 * time.Second}

// Options tunes one delivery.
type Options struct {
	MaxAttempts       int
	PerAttemptTimeout time.Duration
	DelaySchedule     []time.Duration
}

// DefaultOptions returns the standard 4 attempt schedule.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       DefaultMaxAttempts,
		PerAttemptTimeout: DefaultPerAttemptTimeout,
		DelaySchedule:     DefaultDelaySchedule,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.PerAttemptTimeout <= 0 {
		o.PerAttemptTimeout = DefaultPerAttemptTimeout
	}
	if len(o.DelaySchedule) == 0 {
		o.DelaySchedule = DefaultDelaySchedule
	}
	return o
}

// delayBefore returns the wait before the 1-based attempt. The first attempt is
// never delayed and a short schedule repeats its last entry.
func (o Options) delayBefore(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	i := attempt - 1
	if i >= len(o.DelaySchedule) {
		i = len(o.DelaySchedule) - 1
	}
	return o.DelaySchedule[i]
}

// Outcome classifies one attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeAbort   Outcome = "abort"
	OutcomeRetry   Outcome = "retry"
)

// Attempt records one POST. It lives only for the duration of a Deliver call.
type Attempt struct {
	Index      int
	Delay      time.Duration
	Outcome    Outcome
	StatusCode int
	Err        error
}

// Result summarizes a delivery.
type Result struct {
	Success    bool
	Attempts   int
	StatusCode int
	Err        error
	History    []Attempt
}

// Dispatcher posts JSON payloads. It is safe for concurrent use.
type Dispatcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client. Per-attempt timeouts are applied
// through the request context, so the client needs no Timeout of its own.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Dispatcher) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithSleep replaces the delay function.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
		logger:    logger,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver POSTs payload as JSON to url. Attempts are sequential. A 2xx
// response succeeds, a 4xx response aborts without using the remaining
// attempts, and anything else is retried until MaxAttempts is reached.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload any, opts Options) Result {
	opts = opts.withDefaults()
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: domain.Wrap(err, domain.KindBadRequest, "encode webhook payload")}
	}

	result := Result{History: make([]Attempt, 0, opts.MaxAttempts)}
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		delay := opts.delayBefore(attempt)
		if delay > 0 {
			if err := d.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		statusCode, postErr := d.post(ctx, url, body, opts.PerAttemptTimeout)
		outcome := classify(statusCode, postErr)

		result.Attempts = attempt
		result.StatusCode = statusCode
		result.History = append(result.History, Attempt{
			Index:      attempt,
			Delay:      delay,
			Outcome:    outcome,
			StatusCode: statusCode,
			Err:        postErr,
		})
		metrics.WebhookAttemptsTotal.WithLabelValues(string(outcome)).Inc()

		if outcome == OutcomeSuccess {
			result.Success = true
			d.finish(url, &result, start)
			return result
		}

		lastErr = postErr
		if lastErr == nil {
			lastErr = fmt.Errorf("webhook responded with status %d", statusCode)
		}

		d.logger.Warn("Webhook attempt failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", opts.MaxAttempts),
			slog.Int("status_code", statusCode),
			slog.String("outcome", string(outcome)),
			slog.Any("error", lastErr),
		)

		if outcome == OutcomeAbort {
			break
		}
	}

	result.Err = domain.Wrap(lastErr, domain.KindWebhookDelivery, domain.WebhookFailureMessage)
	d.finish(url, &result, start)
	return result
}

func (d *Dispatcher) finish(url string, result *Result, start time.Time) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(strconv.FormatBool(result.Success)).Inc()
	metrics.WebhookDeliveryDuration.Observe(time.Since(start).Seconds())

	if result.Success {
		d.logger.Info("Webhook delivered",
			slog.String("url", url),
			slog.Int("attempts", result.Attempts),
			slog.Int("status_code", result.StatusCode),
		)
		return
	}

	d.logger.Error("Webhook delivery failed",
		slog.String("url", url),
		slog.Int("attempts", result.Attempts),
		slog.Int("status_code", result.StatusCode),
		slog.Any("error", result.Err),
	)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))

	return resp.StatusCode, nil
}

func classify(statusCode int, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeRetry
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode >= 400 && statusCode < 500:
		return OutcomeAbort
	default:
		return OutcomeRetry
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
