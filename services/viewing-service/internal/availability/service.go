// Package availability computes an agent's free slots from working hours,
// blocked intervals and committed appointments.
package availability

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/directory"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

const DefaultGranularity = 30 * time.Minute

// AppointmentReader returns an agent's active appointments overlapping a range.
type AppointmentReader interface {
	ListActiveByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error)
}

type Query struct {
	AgentID     string
	From        time.Time
	To          time.Time
	Granularity time.Duration
	// NotBefore hides slots starting earlier. Zero disables the filter.
	NotBefore time.Time
}

type Service struct {
	dir                directory.Directory
	appts              AppointmentReader
	defaultGranularity time.Duration
	maxRange           time.Duration
}

type Option func(*Service)

func WithDefaultGranularity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultGranularity = d
		}
	}
}

// WithMaxRange caps the span of a single query.
func WithMaxRange(d time.Duration) Option {
	return func(s *Service) { s.maxRange = d }
}

func NewService(dir directory.Directory, appts AppointmentReader, opts ...Option) *Service {
	s := &Service{
		dir:                dir,
		appts:              appts,
		defaultGranularity: DefaultGranularity,
		maxRange:           31 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) DefaultGranularity() time.Duration {
	return s.defaultGranularity
}

// ComputeFreeSlots reads a snapshot of the agent's calendar and returns the
// free slots in [q.From, q.To). The returned sequence does no further I/O.
func (s *Service) ComputeFreeSlots(ctx context.Context, q Query) (iter.Seq[model.Interval], error) {
	if q.Granularity == 0 {
		q.Granularity = s.defaultGranularity
	}
	if err := s.validate(q); err != nil {
		return nil, err
	}

	windows, err := WorkingHours(ctx, s.dir, q.AgentID)
	if err != nil {
		return nil, err
	}
	appts, err := s.appts.ListActiveByAgent(ctx, q.AgentID, q.From, q.To)
	if err != nil {
		return nil, model.Unavailable("load appointments", err)
	}

	busy := make([]model.Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status.Active() {
			busy = append(busy, a.Interval())
		}
	}
	grid := BuildGrid(windows, busy, q.From, q.To)
	return grid.Slots(q.From, q.To, q.Granularity, q.NotBefore), nil
}

func (s *Service) validate(q Query) error {
	switch {
	case q.AgentID == "":
		return model.Invalid("agentId", "required")
	case q.From.IsZero() || q.To.IsZero():
		return model.Invalid("range", "from and to are required")
	case !q.From.Before(q.To):
		return model.Invalid("range", "from must be before to")
	case s.maxRange > 0 && q.To.Sub(q.From) > s.maxRange:
		return model.Invalid("range", "exceeds maximum of "+s.maxRange.String())
	case q.Granularity < 0:
		return model.Invalid("granularity", "must be positive")
	case q.Granularity%time.Minute != 0:
		return model.Invalid("granularity", "must be whole minutes")
	}
	return nil
}

// WorkingHours loads the agent's windows and maps directory failures onto the
// error taxonomy: unknown agents are a validation error, anything else is transient.
func WorkingHours(ctx context.Context, dir directory.Directory, agentID string) ([]model.AvailabilityWindow, error) {
	windows, err := dir.WorkingHours(ctx, agentID)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownAgent) {
			return nil, model.Invalid("agentId", "unknown agent")
		}
		return nil, model.Unavailable("load working hours", err)
	}
	return windows, nil
}
