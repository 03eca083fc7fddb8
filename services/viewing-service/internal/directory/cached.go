package directory

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

// Cached fronts a Directory with expiring LRU caches. Working hours are
// read-mostly so a short TTL is an acceptable staleness bound.
type Cached struct {
	next       Directory
	hours      *expirable.LRU[string, []model.AvailabilityWindow]
	properties *expirable.LRU[string, bool]
	unknown    *expirable.LRU[string, struct{}]
}

func NewCached(next Directory, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		next:       next,
		hours:      expirable.NewLRU[string, []model.AvailabilityWindow](size, nil, ttl),
		properties: expirable.NewLRU[string, bool](size, nil, ttl),
		unknown:    expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

func (c *Cached) WorkingHours(ctx context.Context, agentID string) ([]model.AvailabilityWindow, error) {
	if windows, ok := c.hours.Get(agentID); ok {
		return windows, nil
	}
	if _, ok := c.unknown.Get(agentID); ok {
		return nil, ErrUnknownAgent
	}
	windows, err := c.next.WorkingHours(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrUnknownAgent) {
			c.unknown.Add(agentID, struct{}{})
		}
		return nil, err
	}
	c.hours.Add(agentID, windows)
	return windows, nil
}

func (c *Cached) PropertyExists(ctx context.Context, propertyID string) (bool, error) {
	if ok, hit := c.properties.Get(propertyID); hit {
		return ok, nil
	}
	ok, err := c.next.PropertyExists(ctx, propertyID)
	if err != nil {
		return false, err
	}
	c.properties.Add(propertyID, ok)
	return ok, nil
}
