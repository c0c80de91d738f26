package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/meshlog/internal/codec"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
)

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{Code: code, Message: message, RequestID: middleware.GetReqID(r.Context())},
	})
}

// writeServiceError maps an error from the services layer onto a status code.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidEvent):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	case errors.Is(err, repositories.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
		return
	}

	var partial *repositories.PartialAppendError
	switch {
	case errors.As(err, &partial):
		h.Log.Error(op+"_partial_append",
			slog.String("location_id", partial.LocationID),
			slog.String("key", partial.Key),
			slog.String("err", err.Error()),
		)
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", "event stored but not indexed")
	case errors.Is(err, repositories.ErrStoreUnavailable), errors.Is(err, repositories.ErrBodyNotVisible):
		h.Log.Warn(op+"_unavailable", slog.String("err", err.Error()))
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", "store unavailable")
	case errors.Is(err, codec.ErrCorruptRecord):
		h.Log.Error(op+"_corrupt_record", slog.String("err", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "corrupt_record", "corrupt record in log")
	default:
		h.Log.Error(op+"_failed", slog.String("err", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
