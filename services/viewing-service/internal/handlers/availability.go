package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/viewings/libs/httpx"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/availability"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

type availabilityResponse struct {
	AgentID            string   `json:"agentId"`
	GranularityMinutes int      `json:"granularityMinutes"`
	Slots              []string `json:"slots"`
}

// Availability lists free slot start times. Slots that could no longer be
// booked because of the minimum lead time are left out.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		h.badRequest(w, "from", err)
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		h.badRequest(w, "to", err)
		return
	}
	granularity := h.slots.DefaultGranularity()
	if raw := strings.TrimSpace(q.Get("granularity")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, string(model.KindValidation), "granularity: must be a positive number of minutes")
			return
		}
		granularity = time.Duration(minutes) * time.Minute
	}

	agentID := strings.TrimSpace(q.Get("agentId"))
	seq, err := h.slots.ComputeFreeSlots(r.Context(), availability.Query{
		AgentID:     agentID,
		From:        from,
		To:          to,
		Granularity: granularity,
		NotBefore:   h.engine.Policy().EarliestStart(h.now()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := availabilityResponse{
		AgentID:            agentID,
		GranularityMinutes: int(granularity / time.Minute),
		Slots:              []string{},
	}
	for slot := range seq {
		resp.Slots = append(resp.Slots, slot.Start.Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// parseTime accepts RFC 3339 timestamps. A missing value parses as zero and is
// rejected by the service.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
