package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

type Type string

const (
	TypeBooked        Type = "booking.appointment.booked.v1"
	TypeStatusChanged Type = "booking.appointment.status_changed.v1"
	TypeRescheduled   Type = "booking.appointment.rescheduled.v1"
)

// Event is emitted once per committed appointment mutation.
type Event struct {
	ID              string       `json:"eventId"`
	Type            Type         `json:"eventType"`
	AppointmentID   string       `json:"appointmentId"`
	AgentID         string       `json:"agentId"`
	PreviousStatus  model.Status `json:"previousStatus,omitempty"`
	NewStatus       model.Status `json:"newStatus"`
	Version         int64        `json:"version"`
	ScheduledStart  time.Time    `json:"scheduledStart"`
	DurationMinutes int          `json:"duration"`
	PreviousStart   *time.Time   `json:"previousStart,omitempty"`
	PreviousMinutes int          `json:"previousDuration,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

func base(t Type, a model.Appointment, at time.Time) Event {
	return Event{
		ID:              uuid.NewString(),
		Type:            t,
		AppointmentID:   a.ID,
		AgentID:         a.AgentID,
		NewStatus:       a.Status,
		Version:         a.Version,
		ScheduledStart:  a.ScheduledStart,
		DurationMinutes: a.DurationMinutes,
		Timestamp:       at.UTC(),
	}
}

func Booked(a model.Appointment, at time.Time) Event {
	return base(TypeBooked, a, at)
}

func StatusChanged(prev model.Status, a model.Appointment, reason string, at time.Time) Event {
	evt := base(TypeStatusChanged, a, at)
	evt.PreviousStatus = prev
	evt.Reason = reason
	return evt
}

func Rescheduled(prev model.Appointment, a model.Appointment, at time.Time) Event {
	evt := base(TypeRescheduled, a, at)
	evt.PreviousStatus = prev.Status
	start := prev.ScheduledStart
	evt.PreviousStart = &start
	evt.PreviousMinutes = prev.DurationMinutes
	return evt
}
