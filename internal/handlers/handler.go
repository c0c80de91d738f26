package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
	"github.com/prudhvinik1/meshlog/internal/services"
)

const (
	maxBodyBytes = 1 << 20

	defaultEventLimit = 100
	maxEventLimit     = 1000
)

type Handler struct {
	Log       *slog.Logger
	Events    repositories.EventLogRepository
	Changes   *services.ChangeLogService
	Replay    *services.ReplayService
	Snapshots *services.SnapshotService
	Lookup    *services.LookupService
}

type deviceResponse struct {
	LocationID string            `json:"location_id"`
	DeviceID   int64             `json:"avid"`
	Attributes models.Attributes `json:"data"`
}

type stateResponse struct {
	LocationID string           `json:"location_id"`
	Devices    []deviceResponse `json:"devices"`
}

type eventsResponse struct {
	LocationID string               `json:"location_id"`
	Total      int64                `json:"total"`
	Offset     int64                `json:"offset"`
	Limit      int64                `json:"limit"`
	Events     []models.ChangeEvent `json:"events"`
}

type snapshotResponse struct {
	LocationID string           `json:"location_id"`
	TakenAt    time.Time        `json:"taken_at"`
	Through    *models.Position `json:"through,omitempty"`
	Folded     uint64           `json:"folded"`
	Devices    []deviceResponse `json:"devices"`
}

func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	attrs, ok := decodeAttributes(w, r)
	if !ok {
		return
	}

	e, err := h.Changes.CreateDevice(r.Context(), chi.URLParam(r, "location"), attrs)
	if err != nil {
		h.writeServiceError(w, r, "device_create", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}
	attrs, ok := decodeAttributes(w, r)
	if !ok {
		return
	}

	e, err := h.Changes.UpdateDevice(r.Context(), chi.URLParam(r, "location"), deviceID, attrs)
	if err != nil {
		h.writeServiceError(w, r, "device_update", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	e, err := h.Changes.DeleteDevice(r.Context(), chi.URLParam(r, "location"), deviceID)
	if err != nil {
		h.writeServiceError(w, r, "device_delete", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	d, err := h.Lookup.FindState(r.Context(), chi.URLParam(r, "location"), deviceID)
	if err != nil {
		h.writeServiceError(w, r, "device_get", err)
		return
	}
	if d == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(*d))
}

func (h *Handler) DeviceEvents(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	events, err := h.Lookup.Find(r.Context(), chi.URLParam(r, "location"), deviceID)
	if err != nil {
		h.writeServiceError(w, r, "device_events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) CurrentState(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location")

	state, err := h.Replay.CurrentState(r.Context(), locationID)
	if err != nil {
		h.writeServiceError(w, r, "state_get", err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{LocationID: locationID, Devices: toDeviceList(state)})
}

// ListEvents pages through a location's log by offset, oldest first unless
// order=desc.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location")
	q := r.URL.Query()

	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, r, http.StatusBadRequest, "validation_error", "invalid offset")
		return
	}
	limit, err := queryInt(q.Get("limit"), defaultEventLimit)
	if err != nil || limit <= 0 || limit > maxEventLimit {
		writeError(w, r, http.StatusBadRequest, "validation_error", fmt.Sprintf("limit must be between 1 and %d", maxEventLimit))
		return
	}
	descending := false
	switch q.Get("order") {
	case "", "asc":
	case "desc":
		descending = true
	default:
		writeError(w, r, http.StatusBadRequest, "validation_error", "order must be asc or desc")
		return
	}

	total, err := h.Events.Count(r.Context(), locationID)
	if err != nil {
		h.writeServiceError(w, r, "events_list", err)
		return
	}
	events, err := h.Events.Range(r.Context(), locationID, offset, limit, descending)
	if err != nil {
		h.writeServiceError(w, r, "events_list", err)
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		LocationID: locationID,
		Total:      total,
		Offset:     offset,
		Limit:      limit,
		Events:     events,
	})
}

// LocationStates folds several locations at once: /states?location=1&location=2.
func (h *Handler) LocationStates(w http.ResponseWriter, r *http.Request) {
	locationIDs := r.URL.Query()["location"]
	if len(locationIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "validation_error", "at least one location is required")
		return
	}

	states, err := h.Replay.FoldLocations(r.Context(), locationIDs)
	if err != nil {
		h.writeServiceError(w, r, "states_get", err)
		return
	}

	out := make([]stateResponse, 0, len(locationIDs))
	for _, locationID := range locationIDs {
		out = append(out, stateResponse{LocationID: locationID, Devices: toDeviceList(states[locationID])})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Snapshots.Checkpoint(r.Context(), chi.URLParam(r, "location"))
	if err != nil {
		h.writeServiceError(w, r, "snapshot_checkpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotResponse(snap))
}

func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Snapshots.LatestSnapshot(r.Context(), chi.URLParam(r, "location"))
	if err != nil {
		h.writeServiceError(w, r, "snapshot_latest", err)
		return
	}
	if snap == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "not found")
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(*snap))
}

func parseDeviceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "device"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid device id %q", raw))
		return 0, false
	}
	return id, true
}

// decodeAttributes reads a JSON object body. Numbers stay json.Number so
// integers are not widened to float64.
func decodeAttributes(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var attrs map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	if err := dec.Decode(&attrs); err != nil {
		msg := "invalid json"
		if errors.Is(err, io.EOF) {
			msg = "empty body"
		}
		writeError(w, r, http.StatusBadRequest, "validation_error", msg)
		return nil, false
	}
	if dec.More() {
		writeError(w, r, http.StatusBadRequest, "validation_error", "invalid json")
		return nil, false
	}
	return attrs, true
}

func queryInt(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toDeviceResponse(d models.Device) deviceResponse {
	attrs := d.Attributes
	if attrs == nil {
		attrs = models.Attributes{}
	}
	return deviceResponse{LocationID: d.LocationID, DeviceID: d.DeviceID, Attributes: attrs}
}

func toDeviceList(state models.DeviceState) []deviceResponse {
	out := make([]deviceResponse, 0, len(state))
	for _, d := range state {
		out = append(out, toDeviceResponse(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func toSnapshotResponse(s models.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		LocationID: s.LocationID,
		TakenAt:    s.TakenAt,
		Folded:     s.Folded,
		Devices:    toDeviceList(s.Devices),
	}
	if !s.Through.IsZero() {
		through := s.Through
		resp.Through = &through
	}
	return resp
}
