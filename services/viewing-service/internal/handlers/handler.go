// Package handlers exposes the scheduling core over HTTP under /api/v1.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/availability"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/booking"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/query"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	engine  *booking.Engine
	slots   *availability.Service
	queries *query.Service
	logger  *slog.Logger
	now     func() time.Time
	router  chi.Router
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(engine *booking.Engine, slots *availability.Service, queries *query.Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		engine:  engine,
		slots:   slots,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/availability", h.Availability)
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.Book)
			r.Get("/", h.List)
			r.Get("/{id}", h.Get)
			r.Post("/{id}/transition", h.Transition)
			r.Post("/{id}/reschedule", h.Reschedule)
		})
	})
	return r
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}
