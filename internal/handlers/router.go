package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(log *slog.Logger, h *Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(EchoRequestID)
	router.Use(AccessLog(log))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	router.Get("/states", h.LocationStates)

	router.Route("/locations/{location}", func(r chi.Router) {
		r.Post("/devices", h.CreateDevice)
		r.Get("/devices/{device}", h.GetDevice)
		r.Patch("/devices/{device}", h.UpdateDevice)
		r.Delete("/devices/{device}", h.DeleteDevice)
		r.Get("/devices/{device}/events", h.DeviceEvents)

		r.Get("/events", h.ListEvents)
		r.Get("/state", h.CurrentState)

		r.Post("/snapshots", h.Checkpoint)
		r.Get("/snapshots/latest", h.LatestSnapshot)
	})

	return router
}
