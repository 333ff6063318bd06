// Package service validates activity submissions and appends them to the
// event store.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tasktrail/internal/activity/metrics"
	"tasktrail/pkg/activity"
	dErrors "tasktrail/pkg/domain-errors"
)

var tracer = otel.Tracer("tasktrail/internal/activity/service")

// Store is the append-only sink.
type Store interface {
	Append(ctx context.Context, ev activity.Event) (activity.Event, error)
	ListAll(ctx context.Context) ([]activity.Event, error)
}

// Stream mirrors stored events. Publish errors are logged, never returned.
type Stream interface {
	Publish(ctx context.Context, ev activity.Event) error
}

// Endpoint names used for metrics and logs.
const (
	EndpointLogs     = "logs"
	EndpointAuthLogs = "auth-logs"
)

type Service struct {
	store   Store
	stream  Stream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithStream(s Stream) Option {
	return func(svc *Service) { svc.stream = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

func New(store Store, opts ...Option) *Service {
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit stores a general event. The actor is required.
func (s *Service) Submit(ctx context.Context, ev activity.Event) (activity.Event, error) {
	return s.submit(ctx, EndpointLogs, ev)
}

// SubmitAuth stores an authentication event. A missing actor becomes
// activity.UnknownActor.
func (s *Service) SubmitAuth(ctx context.Context, ev activity.Event) (activity.Event, error) {
	return s.submit(ctx, EndpointAuthLogs, ev)
}

func (s *Service) submit(ctx context.Context, endpoint string, ev activity.Event) (activity.Event, error) {
	ctx, span := tracer.Start(ctx, "activity.submit")
	defer span.End()
	span.SetAttributes(attribute.String("activity.endpoint", endpoint))

	isAuth := endpoint == EndpointAuthLogs
	ev = activity.Normalize(ev, isAuth)
	if errs := activity.Validate(ev, !isAuth); len(errs) > 0 {
		s.metrics.IncrementSubmission(endpoint, metrics.OutcomeRejected)
		span.SetStatus(codes.Error, "rejected")
		return activity.Event{}, dErrors.Wrap(errs, dErrors.CodeValidation, "invalid submission")
	}
	span.SetAttributes(attribute.String("activity.action", ev.Action))

	stored, err := s.store.Append(ctx, ev)
	if err != nil {
		s.metrics.IncrementSubmission(endpoint, metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return activity.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "store event")
	}
	s.metrics.IncrementSubmission(endpoint, metrics.OutcomeAccepted)

	if s.stream != nil {
		if err := s.stream.Publish(ctx, stored); err != nil {
			s.metrics.IncrementStreamFailures()
			s.logger.WarnContext(ctx, "failed to mirror activity event",
				"event_id", stored.ID,
				"error", err,
			)
		}
	}
	return stored, nil
}

// List returns every stored event, newest first.
func (s *Service) List(ctx context.Context) ([]activity.Event, error) {
	ctx, span := tracer.Start(ctx, "activity.list")
	defer span.End()

	events, err := s.store.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list events")
	}
	if events == nil {
		events = []activity.Event{}
	}
	return events, nil
}
