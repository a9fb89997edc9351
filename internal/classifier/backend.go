// Package classifier implements stage 4 of the pipeline: semantic
// classification for files the Rule engine left unresolved, with retry
// and schema enforcement against an opaque LLM backend.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Backend is the contract the classifier consumes from a concrete LLM
// backend (local server or cloud API). The backend accepts an opaque
// prompt string and returns a single text response — prompt
// construction, response parsing, schema validation, and retry are all
// the classifier's responsibility, not the backend's.
type Backend interface {
	// Name identifies the backend for logging ("ollama", "openai", "gemini").
	Name() string

	// HealthCheck verifies the backend is reachable. Called once per run
	// before any classification.
	HealthCheck(ctx context.Context) error

	// Complete sends prompt and returns the backend's raw text response.
	Complete(ctx context.Context, prompt string) (string, error)
}

// TransientError marks a Backend error as retryable (connection refused,
// 5xx, timeout) versus a permanent failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// BackoffPolicy describes the retry schedule for transient backend
// errors: exponential, starting at Initial, doubling, capped at Max, up
// to MaxAttempts attempts.
type BackoffPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff is the policy specified in spec.md §4.4.
var DefaultBackoff = BackoffPolicy{
	Initial:     1 * time.Second,
	Max:         30 * time.Second,
	MaxAttempts: 5,
}

// callWithBackoff retries fn on transient errors per policy. It does not
// retry on non-transient errors or once ctx is cancelled.
func callWithBackoff(ctx context.Context, policy BackoffPolicy, fn func() (string, error)) (string, error) {
	delay := policy.Initial
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == policy.MaxAttempts {
			return "", err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
		if delay > policy.Max {
			delay = policy.Max
		}
	}
	return "", lastErr
}

// RateLimiter is a simple token-bucket limiter bounding requests per
// minute to the backend. Safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	last     time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing up to requestsPerMinute
// requests per minute, with a burst capacity equal to that same figure.
// requestsPerMinute <= 0 disables limiting (Wait returns immediately).
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	rpm := float64(requestsPerMinute)
	return &RateLimiter{
		tokens:   rpm,
		capacity: rpm,
		rate:     rpm / 60.0,
		last:     time.Now(),
		now:      time.Now,
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	for {
		r.mu.Lock()
		now := r.now()
		elapsed := now.Sub(r.last).Seconds()
		r.tokens += elapsed * r.rate
		if r.tokens > r.capacity {
			r.tokens = r.capacity
		}
		r.last = now

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		deficit := 1 - r.tokens
		wait := time.Duration(deficit/r.rate*float64(time.Second)) + time.Millisecond
		r.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HealthProbe runs a Backend's health check once and caches the result
// for the lifetime of a run.
type HealthProbe struct {
	once sync.Once
	err  error
}

// Check runs the probe on first call and returns the cached result on
// every subsequent call.
func (p *HealthProbe) Check(ctx context.Context, backend Backend) error {
	p.once.Do(func() {
		p.err = backend.HealthCheck(ctx)
	})
	return p.err
}

// errBackendUnreachable wraps a health-check failure.
func errBackendUnreachable(backend string, err error) error {
	return fmt.Errorf("backend %s unreachable: %w", backend, err)
}
