// Package lifecycle is the appointment status state machine.
package lifecycle

import (
	"slices"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

var edges = map[model.Status][]model.Status{
	model.StatusScheduled:  {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusInProgress, model.StatusCancelled, model.StatusNoShow},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
}

// Allowed returns the statuses reachable from from in one step.
func Allowed(from model.Status) []model.Status {
	return slices.Clone(edges[from])
}

func CanTransition(from, to model.Status) bool {
	return slices.Contains(edges[from], to)
}

// Apply returns a copy of a moved to status to, with version bumped and the
// matching timestamp stamped. a itself is never modified. A no_show can only be
// recorded once the scheduled start has passed.
func Apply(a model.Appointment, to model.Status, reason string, now time.Time) (model.Appointment, error) {
	if !to.Valid() {
		return model.Appointment{}, model.Invalid("targetStatus", "unknown status "+string(to))
	}
	if !CanTransition(a.Status, to) {
		return model.Appointment{}, &model.TransitionError{From: a.Status, To: to}
	}
	if to == model.StatusNoShow && now.Before(a.ScheduledStart) {
		return model.Appointment{}, &model.TransitionError{From: a.Status, To: to}
	}

	next := a.Clone()
	next.Status = to
	next.Version++
	next.UpdatedAt = now
	stamp := now
	switch to {
	case model.StatusInProgress:
		next.StartedAt = &stamp
	case model.StatusCompleted:
		next.CompletedAt = &stamp
	case model.StatusCancelled:
		next.CancelledAt = &stamp
		next.CancelReason = reason
	case model.StatusNoShow:
		next.CancelReason = reason
	}
	return next, nil
}
