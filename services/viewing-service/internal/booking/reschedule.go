package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/conflict"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type RescheduleRequest struct {
	ID                 string
	ExpectedVersion    int64
	NewStart           time.Time
	NewDurationMinutes int
}

// Reschedule moves a non-terminal appointment in place. The appointment keeps
// its id and status. On any failure the stored appointment is untouched.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (appt model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "booking.Reschedule", attribute.String("appointment_id", req.ID))
	defer func() {
		e.metrics.ObserveReschedule(err)
		endSpan(span, err)
	}()

	now := e.now()
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return model.Appointment{}, model.Invalid("id", "required")
	}
	if req.ExpectedVersion < 1 {
		return model.Appointment{}, model.Invalid("expectedVersion", "required")
	}
	if err := e.policy.checkSlot(req.NewStart, req.NewDurationMinutes, now, "newStart", "newDuration"); err != nil {
		return model.Appointment{}, err
	}

	snapshot, err := e.store.Get(ctx, req.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if snapshot.Status.Terminal() {
		return model.Appointment{}, &model.TransitionError{From: snapshot.Status, To: snapshot.Status}
	}
	candidate := model.NewInterval(req.NewStart, time.Duration(req.NewDurationMinutes)*time.Minute)
	if err := e.checkAvailability(ctx, snapshot.AgentID, candidate); err != nil {
		return model.Appointment{}, err
	}

	var evt events.Event
	err = e.withAgent(ctx, snapshot.AgentID, func(tx storage.Tx) error {
		current, err := loadForUpdate(ctx, tx, req.ID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return &model.TransitionError{From: current.Status, To: current.Status}
		}

		active, err := tx.ListActiveByAgent(ctx, current.AgentID, candidate.Start, candidate.End)
		if err != nil {
			return err
		}
		if other, hit := conflict.FirstConflict(candidate, active, current.ID); hit {
			return &model.SlotError{Reason: "overlaps an existing appointment", ConflictID: other.ID}
		}

		next := current.Clone()
		next.ScheduledStart = req.NewStart
		next.DurationMinutes = req.NewDurationMinutes
		next.Version++
		next.UpdatedAt = now
		if err := tx.Update(ctx, next, current.Version); err != nil {
			return err
		}
		evt = events.Rescheduled(current, next, now)
		if err := tx.Emit(ctx, evt); err != nil {
			return err
		}
		appt = next
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.publish(evt)
	e.logger.Info("appointment rescheduled",
		slog.String("appointment_id", appt.ID),
		slog.String("agent_id", appt.AgentID),
		slog.Time("previous_start", snapshot.ScheduledStart),
		slog.Time("scheduled_start", appt.ScheduledStart),
	)
	return appt, nil
}
