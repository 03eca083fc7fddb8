package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/viewings/libs/httpx"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindSlotUnavailable, model.KindStaleVersion:
		return http.StatusConflict
	case model.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto its HTTP status. Internal errors are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.Kind(err)
	status := statusFor(kind)
	msg := err.Error()

	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		h.logger.Warn("request failed transiently",
			slog.String("request_id", httpx.RequestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
	case http.StatusInternalServerError:
		h.logger.Error("request failed",
			slog.String("request_id", httpx.RequestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
		msg = "internal error"
	}
	httpx.WriteError(w, status, string(kind), msg)
}

// badRequest reports a body or parameter that could not be parsed at all.
func (h *Handler) badRequest(w http.ResponseWriter, field string, err error) {
	httpx.WriteError(w, http.StatusBadRequest, string(model.KindValidation), field+": "+err.Error())
}
