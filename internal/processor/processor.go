// Copyright (c) 2026 Sentinova Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package processor implements the batch classification loop: on a fixed
// interval it reconciles stale claims, selects a bounded batch of unprocessed
// messages oldest first, claims each with a conditional update, classifies it,
// and persists the outcome. Rate limiting from the classifier pushes the next
// cycle out with exponential backoff.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/manisang89/sentinova/internal/classifier"
	"github.com/manisang89/sentinova/internal/models"
	"github.com/manisang89/sentinova/internal/store"
	"github.com/manisang89/sentinova/internal/telemetry"
)

// Store is the slice of the message store the loop needs.
type Store interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, maxRetries int) (int64, error)
	SelectClaimable(ctx context.Context, limit, maxRetries int) ([]models.Message, error)
	Claim(ctx context.Context, id string, expected models.Status) (bool, error)
	Complete(ctx context.Context, id string, res models.Classification) error
	Fail(ctx context.Context, id, reason string) error
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
}

// Limiter gates outbound classifier calls. A denial ends the current batch
// before any further claims; unclaimed records stay untouched.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Publisher announces completed classifications to downstream consumers.
// Publication is best-effort; failures never affect the record.
type Publisher interface {
	PublishClassified(ctx context.Context, m *models.Message) error
}

// Config tunes the processing loop. All fields are required except as noted.
type Config struct {
	BatchSize         int
	Interval          time.Duration
	MaxRetries        int
	ProcessingTimeout time.Duration
	CallTimeout       time.Duration
	MaxBackoff        time.Duration
}

// CycleStats summarises one execution of the loop.
type CycleStats struct {
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration_ms"`
	Reconciled  int64         `json:"reconciled"`
	Selected    int           `json:"selected"`
	Claimed     int           `json:"claimed"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Discarded   int           `json:"discarded"`
	RateLimited bool          `json:"rate_limited"`
	Throttled   bool          `json:"throttled"`
	Error       string        `json:"error,omitempty"`
}

// Health is a point-in-time snapshot of the loop for liveness monitoring.
type Health struct {
	LastCycleStart  time.Time  `json:"last_cycle_start"`
	LastCycleEnd    time.Time  `json:"last_cycle_end"`
	LastSuccess     time.Time  `json:"last_success"`
	RateLimitStreak int        `json:"rate_limit_streak"`
	LastCycle       CycleStats `json:"last_cycle"`
}

// Processor drives the classification loop.
type Processor struct {
	cfg        Config
	store      Store
	classifier classifier.Classifier
	limiter    Limiter   // optional
	publisher  Publisher // optional

	rateLimitStreak int

	mu     sync.RWMutex
	health Health
}

// Option customises a Processor.
type Option func(*Processor)

// WithLimiter installs a local rate limit gate in front of the classifier.
func WithLimiter(l Limiter) Option {
	return func(p *Processor) { p.limiter = l }
}

// WithPublisher installs a classified-event publisher.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// New creates a processor. The store and classifier are required.
func New(cfg Config, st Store, cl classifier.Classifier, opts ...Option) *Processor {
	p := &Processor{
		cfg:        cfg,
		store:      st,
		classifier: cl,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes cycles until the context is cancelled. The first cycle starts
// immediately; each subsequent cycle is scheduled only after the previous one
// finishes, so cycles never overlap.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("processing loop started",
		"interval", p.cfg.Interval,
		"batch_size", p.cfg.BatchSize,
		"max_retries", p.cfg.MaxRetries,
		"processing_timeout", p.cfg.ProcessingTimeout,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("processing loop stopped")
			return ctx.Err()
		case <-timer.C:
		}

		stats := p.RunCycle(ctx)
		timer.Reset(p.nextWait(stats))
	}
}

// RunCycle executes one selection-classify-persist pass and returns its
// summary. Exposed separately so operators and tests can drive single cycles.
func (p *Processor) RunCycle(ctx context.Context) CycleStats {
	stats := CycleStats{Started: time.Now().UTC()}
	p.setCycleStart(stats.Started)

	defer func() {
		stats.Duration = time.Since(stats.Started)
		p.finishCycle(stats)
	}()

	reconciled, err := p.store.ReconcileStale(ctx, p.cfg.ProcessingTimeout, p.cfg.MaxRetries)
	if err != nil {
		stats.Error = err.Error()
		slog.Error("cycle aborted: stale claim reconciliation failed", "error", err)
		return stats
	}
	stats.Reconciled = reconciled
	if reconciled > 0 {
		slog.Warn("reset stale processing claims", "count", reconciled)
	}

	batch, err := p.store.SelectClaimable(ctx, p.cfg.BatchSize, p.cfg.MaxRetries)
	if err != nil {
		stats.Error = err.Error()
		slog.Error("cycle aborted: claimable query failed", "error", err)
		return stats
	}
	stats.Selected = len(batch)

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}

		if p.limiter != nil {
			allowed, tokens, lerr := p.limiter.Allow(ctx, "classifier")
			if lerr != nil {
				// A broken limiter must not stall the pipeline.
				slog.Warn("rate limiter unavailable, proceeding without it", "error", lerr)
			} else if !allowed {
				stats.Throttled = true
				slog.Info("local rate limit reached, ending batch early",
					"tokens", tokens,
					"remaining", stats.Selected-stats.Claimed,
				)
				break
			}
		}

		claimed, err := p.store.Claim(ctx, msg.ID, msg.Status)
		if err != nil {
			stats.Error = err.Error()
			slog.Error("cycle aborted: claim failed", "id", msg.ID, "error", err)
			break
		}
		if !claimed {
			// Another worker got there first.
			slog.Debug("claim lost", "id", msg.ID)
			continue
		}
		stats.Claimed++
		msg.AttemptCount++

		p.processOne(ctx, msg, &stats)
	}

	return stats
}

// processOne classifies a claimed message and persists the outcome.
func (p *Processor) processOne(ctx context.Context, msg models.Message, stats *CycleStats) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.classifier.Classify(callCtx, msg.Body)
	telemetry.ClassifyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "failed"
		if classifier.IsRateLimit(err) {
			stats.RateLimited = true
			outcome = "rate_limited"
		}
		telemetry.Classifications.WithLabelValues(outcome).Inc()
		stats.Failed++

		slog.Warn("classification failed",
			"id", msg.ID,
			"source", msg.Source,
			"attempt", msg.AttemptCount,
			"max_retries", p.cfg.MaxRetries,
			"error", err,
		)

		if ferr := p.store.Fail(ctx, msg.ID, err.Error()); ferr != nil {
			if errors.Is(ferr, store.ErrStaleClaim) {
				slog.Warn("failure write lost to reconciliation", "id", msg.ID)
			} else {
				slog.Error("failed to record classification failure", "id", msg.ID, "error", ferr)
			}
		}
		return
	}

	if err := p.store.Complete(ctx, msg.ID, *res); err != nil {
		if errors.Is(err, store.ErrStaleClaim) {
			// The claim timed out mid-call and the record was handed back.
			// Discard this result; a later attempt owns the record now.
			stats.Discarded++
			slog.Warn("discarding result for reclaimed message", "id", msg.ID)
			return
		}
		stats.Failed++
		telemetry.Classifications.WithLabelValues("failed").Inc()
		slog.Error("failed to persist classification", "id", msg.ID, "error", err)
		return
	}

	stats.Completed++
	telemetry.Classifications.WithLabelValues("completed").Inc()
	slog.Info("message classified",
		"id", msg.ID,
		"source", msg.Source,
		"sentiment", res.Sentiment,
		"confidence", res.Confidence,
	)

	if p.publisher != nil {
		p.publish(ctx, msg, *res)
	}
}

// publish announces a completed classification. Best-effort only.
func (p *Processor) publish(ctx context.Context, msg models.Message, res models.Classification) {
	now := time.Now().UTC()
	msg.Status = models.StatusCompleted
	msg.Sentiment = res.Sentiment
	msg.Confidence = &res.Confidence
	msg.Summary = res.Summary
	msg.Keywords = res.Keywords
	msg.ProcessedAt = &now

	if err := p.publisher.PublishClassified(ctx, &msg); err != nil {
		slog.Warn("failed to publish classified event", "id", msg.ID, "error", err)
	}
}

// nextWait decides the gap before the next cycle. Remote rate limiting grows
// the wait exponentially with jitter; any other cycle, including aborted
// ones, keeps the normal schedule so store outages self-heal without restart.
func (p *Processor) nextWait(stats CycleStats) time.Duration {
	if stats.RateLimited {
		p.rateLimitStreak++
		p.setRateLimitStreak(p.rateLimitStreak)
		wait := backoffWithJitter(p.cfg.Interval, p.cfg.MaxBackoff, p.rateLimitStreak)
		slog.Warn("classifier rate limited, backing off",
			"streak", p.rateLimitStreak,
			"next_cycle_in", wait,
		)
		return wait
	}
	if p.rateLimitStreak > 0 {
		p.rateLimitStreak = 0
		p.setRateLimitStreak(0)
	}
	return p.cfg.Interval
}

// Health returns a snapshot of the loop state.
func (p *Processor) Health() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

func (p *Processor) setCycleStart(t time.Time) {
	p.mu.Lock()
	p.health.LastCycleStart = t
	p.mu.Unlock()
}

func (p *Processor) setRateLimitStreak(n int) {
	p.mu.Lock()
	p.health.RateLimitStreak = n
	p.mu.Unlock()
}

// finishCycle records the cycle outcome in health state, metrics, and the log.
func (p *Processor) finishCycle(stats CycleStats) {
	now := time.Now().UTC()

	p.mu.Lock()
	p.health.LastCycleEnd = now
	p.health.LastCycle = stats
	if stats.Error == "" {
		p.health.LastSuccess = now
	}
	p.mu.Unlock()

	result := "ok"
	if stats.Error != "" {
		result = "error"
	}
	telemetry.CyclesTotal.WithLabelValues(result).Inc()
	telemetry.CycleDuration.Observe(stats.Duration.Seconds())
	if stats.Error == "" {
		telemetry.LastSuccessTimestamp.Set(float64(now.Unix()))
	}

	p.updateBacklog()

	slog.Info("cycle complete",
		"duration_ms", stats.Duration.Milliseconds(),
		"reconciled", stats.Reconciled,
		"selected", stats.Selected,
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"discarded", stats.Discarded,
		"rate_limited", stats.RateLimited,
		"throttled", stats.Throttled,
	)
}

// updateBacklog refreshes the per-status backlog gauges after each cycle.
func (p *Processor) updateBacklog() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := p.store.CountByStatus(ctx)
	if err != nil {
		slog.Debug("backlog refresh failed", "error", err)
		return
	}
	for _, status := range []models.Status{
		models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed,
	} {
		telemetry.Backlog.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
