package booking

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/lifecycle"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type TransitionRequest struct {
	ID              string
	ExpectedVersion int64
	Target          model.Status
	Reason          string
}

// Transition moves an appointment along one lifecycle edge.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (appt model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "booking.Transition",
		attribute.String("appointment_id", req.ID),
		attribute.String("target_status", string(req.Target)),
	)
	var from model.Status
	defer func() {
		e.metrics.ObserveTransition(from, req.Target, err)
		endSpan(span, err)
	}()

	req.ID = strings.TrimSpace(req.ID)
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.ID == "":
		return model.Appointment{}, model.Invalid("id", "required")
	case req.ExpectedVersion < 1:
		return model.Appointment{}, model.Invalid("expectedVersion", "required")
	case !req.Target.Valid():
		return model.Appointment{}, model.Invalid("targetStatus", "unknown status "+string(req.Target))
	case utf8.RuneCountInString(req.Reason) > maxNotesLength:
		return model.Appointment{}, model.Invalid("reason", "too long")
	}

	snapshot, err := e.store.Get(ctx, req.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	from = snapshot.Status

	var evt events.Event
	err = e.withAgent(ctx, snapshot.AgentID, func(tx storage.Tx) error {
		current, err := loadForUpdate(ctx, tx, req.ID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		from = current.Status
		next, err := lifecycle.Apply(current, req.Target, req.Reason, e.now())
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, next, current.Version); err != nil {
			return err
		}
		evt = events.StatusChanged(current.Status, next, req.Reason, next.UpdatedAt)
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
	e.logger.Info("appointment status changed",
		slog.String("appointment_id", appt.ID),
		slog.String("agent_id", appt.AgentID),
		slog.String("from", string(evt.PreviousStatus)),
		slog.String("to", string(appt.Status)),
	)
	return appt, nil
}
