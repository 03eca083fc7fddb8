package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/viewings/libs/auth"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/availability"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/conflict"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type BookRequest struct {
	AgentID         string
	PropertyID      string
	ClientContact   model.ClientContact
	ScheduledStart  time.Time
	DurationMinutes int
	ViewingType     model.ViewingType
	AttendeeCount   int
	Notes           string
	// IdempotencyKey makes retries of the same request return the original
	// appointment instead of booking twice. Scoped per agent.
	IdempotencyKey string
}

// Book validates req and commits a new scheduled appointment. created is false
// when an earlier booking with the same idempotency key was returned instead.
func (e *Engine) Book(ctx context.Context, req BookRequest) (appt model.Appointment, created bool, err error) {
	ctx, span := e.startSpan(ctx, "booking.Book",
		attribute.String("agent_id", req.AgentID),
		attribute.String("property_id", req.PropertyID),
	)
	defer func() {
		e.metrics.ObserveBooking(err)
		endSpan(span, err)
	}()

	now := e.now()
	if err := e.policy.checkRequest(&req, now); err != nil {
		return model.Appointment{}, false, err
	}
	if err := e.checkProperty(ctx, req.PropertyID); err != nil {
		return model.Appointment{}, false, err
	}
	candidate := model.NewInterval(req.ScheduledStart, time.Duration(req.DurationMinutes)*time.Minute)
	if err := e.checkAvailability(ctx, req.AgentID, candidate); err != nil {
		return model.Appointment{}, false, err
	}

	next := model.Appointment{
		ID:              uuid.NewString(),
		AgentID:         req.AgentID,
		PropertyID:      req.PropertyID,
		ClientContact:   req.ClientContact,
		ScheduledStart:  req.ScheduledStart,
		DurationMinutes: req.DurationMinutes,
		ViewingType:     req.ViewingType,
		AttendeeCount:   req.AttendeeCount,
		Status:          model.StatusScheduled,
		Notes:           req.Notes,
		Version:         1,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		next.CreatedBy = id.Subject
	}

	var evt events.Event
	err = e.withAgent(ctx, req.AgentID, func(tx storage.Tx) error {
		if req.IdempotencyKey != "" {
			prior, found, err := tx.FindByIdempotencyKey(ctx, req.AgentID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if !sameBooking(prior, req) {
					return model.Invalid("Idempotency-Key", "already used for a different booking")
				}
				appt = prior
				return nil
			}
		}

		active, err := tx.ListActiveByAgent(ctx, req.AgentID, candidate.Start, candidate.End)
		if err != nil {
			return err
		}
		if other, hit := conflict.FirstConflict(candidate, active, ""); hit {
			return &model.SlotError{Reason: "overlaps an existing appointment", ConflictID: other.ID}
		}
		if err := tx.Insert(ctx, next); err != nil {
			return err
		}
		evt = events.Booked(next, now)
		if err := tx.Emit(ctx, evt); err != nil {
			return err
		}
		appt, created = next, true
		return nil
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if created {
		e.publish(evt)
		e.logger.Info("appointment booked",
			slog.String("appointment_id", appt.ID),
			slog.String("agent_id", appt.AgentID),
			slog.Time("scheduled_start", appt.ScheduledStart),
		)
	}
	return appt, created, nil
}

func sameBooking(a model.Appointment, req BookRequest) bool {
	return a.PropertyID == req.PropertyID &&
		a.ScheduledStart.Equal(req.ScheduledStart) &&
		a.DurationMinutes == req.DurationMinutes &&
		a.ClientContact.Email == req.ClientContact.Email
}

func (e *Engine) checkProperty(ctx context.Context, propertyID string) error {
	ok, err := e.dir.PropertyExists(ctx, propertyID)
	if err != nil {
		return model.Unavailable("property lookup", err)
	}
	if !ok {
		return model.Invalid("propertyId", "unknown property")
	}
	return nil
}

// checkAvailability requires the candidate to sit inside one working window
// and clear of blocked time.
func (e *Engine) checkAvailability(ctx context.Context, agentID string, candidate model.Interval) error {
	windows, err := availability.WorkingHours(ctx, e.dir, agentID)
	if err != nil {
		return err
	}
	if !conflict.Covered(candidate, availability.Open(windows, candidate.Start, candidate.End)) {
		return &model.SlotError{Reason: "outside availability"}
	}
	return nil
}
