// Package storage persists appointments. Every calendar mutation for an agent
// runs inside WithAgent, which serializes writers per agent and applies the
// unit of work atomically.
package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

const DefaultLockTimeout = 5 * time.Second

// Store is the committed appointment set. Reads outside WithAgent see a
// consistent snapshot and never wait for writers.
type Store interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	// ListActiveByAgent returns the agent's active appointments overlapping [from, to).
	ListActiveByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error)
	// ListByAgent returns appointments of any status starting in [from, to).
	ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error)
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]model.Appointment, error)

	// WithAgent runs fn as the single writer for agentID. Writes made through
	// the Tx take effect only if fn returns nil. Failing to acquire the agent
	// within the lock timeout returns an Unavailable error and fn is not run.
	WithAgent(ctx context.Context, agentID string, fn func(Tx) error) error
}

// Tx is the unit of work for one agent.
type Tx interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	ListActiveByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, agentID, key string) (model.Appointment, bool, error)
	Insert(ctx context.Context, a model.Appointment) error
	// Update replaces the stored row if its version still equals expectedVersion.
	Update(ctx context.Context, a model.Appointment, expectedVersion int64) error
	// Emit records events to be delivered once the unit of work commits.
	Emit(ctx context.Context, evts ...events.Event) error
}
