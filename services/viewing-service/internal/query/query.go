// Package query serves read-only views of committed appointments.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/lifecycle"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Projection is an appointment as shown to callers. Terminal appointments are
// reported with Mutable false and no allowed transitions.
type Projection struct {
	model.Appointment
	AllowedTransitions []model.Status `json:"allowedTransitions"`
	Mutable            bool           `json:"mutable"`
}

func Project(a model.Appointment) Projection {
	allowed := lifecycle.Allowed(a.Status)
	if allowed == nil {
		allowed = []model.Status{}
	}
	return Projection{
		Appointment:        a,
		AllowedTransitions: allowed,
		Mutable:            !a.Status.Terminal(),
	}
}

func projectAll(in []model.Appointment) []Projection {
	out := make([]Projection, 0, len(in))
	for _, a := range in {
		out = append(out, Project(a))
	}
	return out
}

type Service struct {
	store storage.Store
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetByID(ctx context.Context, id string) (Projection, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Projection{}, model.Invalid("id", "required")
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Projection{}, err
	}
	return Project(a), nil
}

// ListByAgentAndDate returns the agent's appointments of any status starting
// on the calendar date in loc, ordered by start.
func (s *Service) ListByAgentAndDate(ctx context.Context, agentID string, date time.Time, loc *time.Location) ([]Projection, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, model.Invalid("agentId", "required")
	}
	if date.IsZero() {
		return nil, model.Invalid("date", "required")
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)
	appts, err := s.store.ListByAgent(ctx, agentID, from, to)
	if err != nil {
		return nil, err
	}
	return projectAll(appts), nil
}

// ListByStatus returns up to limit appointments in status, ordered by start.
func (s *Service) ListByStatus(ctx context.Context, status model.Status, limit int) ([]Projection, error) {
	if !status.Valid() {
		return nil, model.Invalid("status", "unknown status "+string(status))
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	appts, err := s.store.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	return projectAll(appts), nil
}
