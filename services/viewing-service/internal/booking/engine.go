// Package booking is the single entry point for calendar mutations: creating,
// rescheduling and transitioning appointments. Every operation validates up
// front, then runs as one unit of work under the agent's write lock.
package booking

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/viewings/libs/otel"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/directory"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metrics receives one observation per engine operation.
type Metrics interface {
	ObserveBooking(err error)
	ObserveTransition(from, to model.Status, err error)
	ObserveReschedule(err error)
	ObserveLockWait(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveBooking(error) {}
func (nopMetrics) ObserveTransition(model.Status, model.Status, error) {}
func (nopMetrics) ObserveReschedule(error) {}
func (nopMetrics) ObserveLockWait(time.Duration) {}

type Engine struct {
	store   storage.Store
	dir     directory.Directory
	policy  Policy
	now     func() time.Time
	bus     *events.Bus
	metrics Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBus publishes committed events to in-process subscribers.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(store storage.Store, dir directory.Directory, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		dir:     dir,
		policy:  policy.withDefaults(),
		now:     time.Now,
		metrics: nopMetrics{},
		logger:  slog.Default(),
		tracer:  otelx.Tracer("viewing-service/booking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// withAgent runs fn under the agent's write lock and records how long the
// lock took to acquire.
func (e *Engine) withAgent(ctx context.Context, agentID string, fn func(storage.Tx) error) error {
	requested := time.Now()
	return e.store.WithAgent(ctx, agentID, func(tx storage.Tx) error {
		e.metrics.ObserveLockWait(time.Since(requested))
		return fn(tx)
	})
}

// publish hands committed events to the bus. Callers must only invoke it after
// the unit of work returned nil.
func (e *Engine) publish(evts ...events.Event) {
	e.bus.Publish(evts...)
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(model.Kind(err)))
	}
	span.End()
}

// loadForUpdate re-reads the appointment inside the unit of work and checks
// the caller's version.
func loadForUpdate(ctx context.Context, tx storage.Tx, id string, expectedVersion int64) (model.Appointment, error) {
	current, err := tx.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Version != expectedVersion {
		return model.Appointment{}, &model.StaleVersionError{Expected: expectedVersion, Actual: current.Version}
	}
	return current, nil
}
