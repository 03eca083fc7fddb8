package model

import "fmt"

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// ActiveStatuses are the statuses that hold a slot on the agent's calendar.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Active reports whether the appointment occupies its interval.
func (s Status) Active() bool {
	return s.Valid() && !s.Terminal()
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", Invalid("status", fmt.Sprintf("unknown status %q", raw))
	}
	return s, nil
}

type ViewingType string

const (
	ViewingInPerson   ViewingType = "in_person"
	ViewingVirtual    ViewingType = "virtual"
	ViewingSelfGuided ViewingType = "self_guided"
)

func (v ViewingType) Valid() bool {
	switch v {
	case ViewingInPerson, ViewingVirtual, ViewingSelfGuided:
		return true
	}
	return false
}
