package classifier

import (
	"context"
	"fmt"
	"sync"

	"organizer/internal/core"
	"organizer/internal/model"
)

// MaxSchemaAttempts bounds retries for a malformed/invalid response,
// each retry carrying a correction directive describing the prior
// failure.
const MaxSchemaAttempts = 3

// DefaultConcurrency is the worker pool size for ClassifyBatch per the
// concurrency model in spec.md §5.
const DefaultConcurrency = 4

// Classifier drives stage 4 of the pipeline: records the Rule engine
// left unmatched are sent to Backend, validated against the response
// schema, and retried on transient backend failure or schema violation.
type Classifier struct {
	backend     Backend
	limiter     *RateLimiter
	probe       HealthProbe
	backoff     BackoffPolicy
	concurrency int
	logger      core.Logger
}

// Options configures a Classifier.
type Options struct {
	Backend           Backend
	RequestsPerMinute int // 0 disables rate limiting
	Backoff           BackoffPolicy
	Concurrency       int
	Logger            core.Logger
}

// New builds a Classifier around backend.
func New(opts Options) *Classifier {
	backoff := opts.Backoff
	if backoff.MaxAttempts == 0 {
		backoff = DefaultBackoff
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Classifier{
		backend:     opts.Backend,
		limiter:     NewRateLimiter(opts.RequestsPerMinute),
		backoff:     backoff,
		concurrency: concurrency,
		logger:      logger,
	}
}

// HealthCheck runs the backend's health probe once per Classifier
// lifetime and caches the result.
func (c *Classifier) HealthCheck(ctx context.Context) error {
	if err := c.probe.Check(ctx, c.backend); err != nil {
		return errBackendUnreachable(c.backend.Name(), err)
	}
	return nil
}

// Classify sends record through the backend, validating and retrying on
// schema violations up to MaxSchemaAttempts, and on transient backend
// errors per the Classifier's backoff policy. If every attempt fails,
// Classify returns a fallback Classification routed to the inbox rather
// than an error — the pipeline must make progress on every file.
func (c *Classifier) Classify(ctx context.Context, record *model.FileRecord) model.Classification {
	correction := ""
	var lastErr error

	for attempt := 1; attempt <= MaxSchemaAttempts; attempt++ {
		prompt := build(record, correction)

		raw, err := callWithBackoff(ctx, c.backoff, func() (string, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
			return c.backend.Complete(ctx, prompt)
		})
		if err != nil {
			lastErr = err
			c.logger.Warn("classifier backend call failed", "path", record.Path, "attempt", attempt, "error", err)
			if !IsTransient(err) {
				break
			}
			continue
		}

		resp, err := parseResponse(raw)
		if err != nil {
			lastErr = err
			correction = err.Error()
			c.logger.Warn("classifier response invalid", "path", record.Path, "attempt", attempt, "error", err)
			continue
		}

		return resp.toClassification()
	}

	return fallback(record, lastErr)
}

// fallback produces the inbox-routed Classification used when the
// backend cannot produce a valid response after retrying.
func fallback(record *model.FileRecord, cause error) model.Classification {
	reason := "classification failed"
	if cause != nil {
		reason = fmt.Sprintf("classification failed: %v", cause)
	}
	return model.Classification{
		Category:      model.CategoryInbox,
		Subject:       record.Path,
		SuggestedName: "",
		Confidence:    0,
		Rationale:     reason,
		Source:        model.SourceFallback,
	}
}

// BatchResult pairs a FileRecord with its Classification for ClassifyBatch.
type BatchResult struct {
	Record         *model.FileRecord
	Classification model.Classification
}

// ClassifyBatch fans records out across a worker pool of Classifier's
// configured concurrency, preserving no particular output order — the
// Planner re-sorts by source path before emitting a Plan.
func (c *Classifier) ClassifyBatch(ctx context.Context, records []*model.FileRecord) []BatchResult {
	if len(records) == 0 {
		return nil
	}

	in := make(chan *model.FileRecord)
	out := make(chan BatchResult, len(records))

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range in {
				out <- BatchResult{Record: record, Classification: c.Classify(ctx, record)}
			}
		}()
	}

	go func() {
		defer close(in)
		for _, r := range records {
			select {
			case in <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(out)

	results := make([]BatchResult, 0, len(records))
	for r := range out {
		results = append(results, r)
	}
	return results
}
