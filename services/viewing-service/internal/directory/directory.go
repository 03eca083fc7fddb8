// Package directory adapts the external agent and property directory.
package directory

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

var ErrUnknownAgent = errors.New("unknown agent")

// Directory is read-only to the scheduling core.
type Directory interface {
	// WorkingHours returns the agent's windows with blocked intervals attached.
	// An unknown agent yields ErrUnknownAgent.
	WorkingHours(ctx context.Context, agentID string) ([]model.AvailabilityWindow, error)
	PropertyExists(ctx context.Context, propertyID string) (bool, error)
}
