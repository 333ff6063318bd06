// Package emitter sends best-effort activity events to the ingestion service.
//
// Emit never returns an error and never blocks longer than the configured
// timeout. A dropped event is logged and counted, nothing more. Callers invoke
// it after their own mutation has committed, so a missing event never means
// the mutation failed.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"tasktrail/pkg/activity"
	"tasktrail/pkg/platform/circuit"
)

// DefaultTimeout bounds each outbound submission.
const DefaultTimeout = 2 * time.Second

// ErrEmissionFailed wraps every outbound failure. It is only ever logged.
var ErrEmissionFailed = errors.New("activity emission failed")

var tracer = otel.Tracer("tasktrail/pkg/activity/emitter")

// Config is fixed at construction; nothing is read from the environment at
// call time.
type Config struct {
	// Name labels logs and metrics, e.g. "task" or "auth".
	Name string
	// URL is the full ingestion endpoint, e.g. http://localhost:3000/api/logs.
	URL     string
	Enabled bool
	Timeout time.Duration
}

// Emitter dispatches events synchronously with a timeout, or through a
// bounded queue when built WithAsyncBuffer.
type Emitter struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	wg     sync.WaitGroup
}

type queued struct {
	ctx context.Context
	ev  activity.Event
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithHTTPClient replaces the default client. The per-call timeout still applies.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Emitter) {
		if c != nil {
			e.client = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Emitter) { e.metrics = m }
}

// WithBreaker skips dialling while the ingestion service keeps failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(e *Emitter) { e.breaker = b }
}

// WithAsyncBuffer hands events to a single background worker through a
// queue of size n. When the queue is full the newest event is dropped.
func WithAsyncBuffer(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.queue = make(chan queued, n)
		}
	}
}

// WithClock overrides the clock used to stamp OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an Emitter. A disabled emitter never touches the network.
func New(cfg Config, opts ...Option) *Emitter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	e := &Emitter{
		cfg:    cfg,
		client: &http.Client{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.queue != nil && cfg.Enabled {
		e.wg.Add(1)
		go e.drain()
	}
	return e
}

// Enabled reports whether Emit sends anything.
func (e *Emitter) Enabled() bool { return e.cfg.Enabled }

// Emit submits ev. Failures are absorbed here and never reach the caller.
func (e *Emitter) Emit(ctx context.Context, ev activity.Event) {
	if !e.cfg.Enabled {
		e.metrics.observe(e.cfg.Name, outcomeDisabled)
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	// The caller may abort after its mutation committed; the event is still due.
	ctx = context.WithoutCancel(ctx)

	if e.queue == nil {
		e.dispatch(ctx, ev)
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ctx, ev, "emitter closed")
		return
	}
	select {
	case e.queue <- queued{ctx: ctx, ev: ev}:
	default:
		e.drop(ctx, ev, "buffer full")
	}
}

// Close stops accepting events and waits for queued ones to be sent.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.queue != nil && e.cfg.Enabled {
		close(e.queue)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Emitter) drain() {
	defer e.wg.Done()
	for q := range e.queue {
		e.dispatch(q.ctx, q.ev)
	}
}

func (e *Emitter) drop(ctx context.Context, ev activity.Event, reason string) {
	e.metrics.observe(e.cfg.Name, outcomeDropped)
	e.logger.DebugContext(ctx, "activity event dropped",
		"emitter", e.cfg.Name,
		"action", ev.Action,
		"reason", reason,
	)
}

func (e *Emitter) dispatch(ctx context.Context, ev activity.Event) {
	if e.breaker != nil && !e.breaker.Allow() {
		e.drop(ctx, ev, "circuit open")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "activity.emit")
	defer span.End()
	span.SetAttributes(
		attribute.String("activity.emitter", e.cfg.Name),
		attribute.String("activity.action", ev.Action),
	)

	start := time.Now()
	err := e.send(ctx, ev)
	e.metrics.observeDuration(e.cfg.Name, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "emission failed")
		e.metrics.observe(e.cfg.Name, outcomeFailed)
		e.recordFailure(ctx)
		e.logger.WarnContext(ctx, "activity emission failed",
			"emitter", e.cfg.Name,
			"action", ev.Action,
			"error", err,
		)
		return
	}

	e.metrics.observe(e.cfg.Name, outcomeSent)
	if e.breaker != nil {
		if _, change := e.breaker.RecordSuccess(); change.Closed {
			e.logger.InfoContext(ctx, "activity emitter circuit closed", "emitter", e.cfg.Name)
		}
	}
}

func (e *Emitter) recordFailure(ctx context.Context) {
	if e.breaker == nil {
		return
	}
	if _, change := e.breaker.RecordFailure(); change.Opened {
		e.logger.WarnContext(ctx, "activity emitter circuit opened", "emitter", e.cfg.Name)
	}
}

func (e *Emitter) send(ctx context.Context, ev activity.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", ErrEmissionFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrEmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmissionFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrEmissionFailed, resp.StatusCode)
	}
	return nil
}
