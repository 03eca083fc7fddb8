package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/viewings/libs/httpx"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/booking"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/query"
)

type bookRequest struct {
	AgentID        string              `json:"agentId"`
	PropertyID     string              `json:"propertyId"`
	ScheduledStart time.Time           `json:"scheduledStart"`
	Duration       int                 `json:"duration"`
	ViewingType    model.ViewingType   `json:"viewingType"`
	AttendeeCount  int                 `json:"attendeeCount"`
	ClientContact  model.ClientContact `json:"clientContact"`
	Notes          string              `json:"notes"`
}

type transitionRequest struct {
	ExpectedVersion int64        `json:"expectedVersion"`
	TargetStatus    model.Status `json:"targetStatus"`
	Reason          string       `json:"reason"`
}

type rescheduleRequest struct {
	ExpectedVersion int64     `json:"expectedVersion"`
	NewStart        time.Time `json:"newStart"`
	NewDuration     int       `json:"newDuration"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, "body", err)
		return
	}

	appt, created, err := h.engine.Book(r.Context(), booking.BookRequest{
		AgentID:         req.AgentID,
		PropertyID:      req.PropertyID,
		ClientContact:   req.ClientContact,
		ScheduledStart:  req.ScheduledStart,
		DurationMinutes: req.Duration,
		ViewingType:     req.ViewingType,
		AttendeeCount:   req.AttendeeCount,
		Notes:           req.Notes,
		IdempotencyKey:  r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/bookings/"+appt.ID)
	httpx.WriteJSON(w, status, appt)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.queries.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// List serves ?status=&limit= or ?agentId=&date=&tz=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		out []query.Projection
		err error
	)
	switch {
	case q.Get("status") != "":
		limit := 0
		if raw := q.Get("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
				httpx.WriteError(w, http.StatusBadRequest, string(model.KindValidation), "limit: must be a non-negative integer")
				return
			}
		}
		out, err = h.queries.ListByStatus(r.Context(), model.Status(strings.TrimSpace(q.Get("status"))), limit)
	case q.Get("agentId") != "":
		loc := time.UTC
		if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
			if loc, err = time.LoadLocation(tz); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, string(model.KindValidation), "tz: unknown time zone")
				return
			}
		}
		date, perr := time.ParseInLocation(time.DateOnly, strings.TrimSpace(q.Get("date")), loc)
		if perr != nil {
			httpx.WriteError(w, http.StatusBadRequest, string(model.KindValidation), "date: must be YYYY-MM-DD")
			return
		}
		out, err = h.queries.ListByAgentAndDate(r.Context(), q.Get("agentId"), date, loc)
	default:
		httpx.WriteError(w, http.StatusBadRequest, string(model.KindValidation), "either status or agentId and date are required")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, "body", err)
		return
	}
	appt, err := h.engine.Transition(r.Context(), booking.TransitionRequest{
		ID:              chi.URLParam(r, "id"),
		ExpectedVersion: req.ExpectedVersion,
		Target:          req.TargetStatus,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, "body", err)
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), booking.RescheduleRequest{
		ID:                 chi.URLParam(r, "id"),
		ExpectedVersion:    req.ExpectedVersion,
		NewStart:           req.NewStart,
		NewDurationMinutes: req.NewDuration,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}
