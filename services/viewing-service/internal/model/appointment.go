package model

import "time"

type ClientContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Appointment is a committed property viewing. Appointments are never deleted;
// cancellation is a terminal status.
type Appointment struct {
	ID              string        `json:"id"`
	AgentID         string        `json:"agentId"`
	PropertyID      string        `json:"propertyId"`
	ClientContact   ClientContact `json:"clientContact"`
	ScheduledStart  time.Time     `json:"scheduledStart"`
	DurationMinutes int           `json:"duration"`
	ViewingType     ViewingType   `json:"viewingType"`
	AttendeeCount   int           `json:"attendeeCount"`
	Status          Status        `json:"status"`
	Notes           string        `json:"notes,omitempty"`
	Version         int64         `json:"version"`

	CancelReason   string     `json:"cancelReason,omitempty"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	IdempotencyKey string     `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) End() time.Time {
	return a.ScheduledStart.Add(a.Duration())
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.ScheduledStart, End: a.End()}
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	a.StartedAt = cloneTime(a.StartedAt)
	a.CompletedAt = cloneTime(a.CompletedAt)
	a.CancelledAt = cloneTime(a.CancelledAt)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
