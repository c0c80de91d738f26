package codec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/prudhvinik1/meshlog/internal/models"
)

// Layouts accepted for created_at. Writers always emit RFC 3339 with nanoseconds.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -0700",
}

type wireEvent struct {
	LocationID   *string        `json:"location_id" msgpack:"location_id" cbor:"location_id"`
	CreatedAt    *string        `json:"created_at" msgpack:"created_at" cbor:"created_at"`
	Data         map[string]any `json:"data" msgpack:"data" cbor:"data"`
	TypeOfObject *string        `json:"type_of_object" msgpack:"type_of_object" cbor:"type_of_object"`
	Channel      *string        `json:"channel" msgpack:"channel" cbor:"channel"`
	Action       *string        `json:"action" msgpack:"action" cbor:"action"`
	UUID         *string        `json:"uuid" msgpack:"uuid" cbor:"uuid"`
	SequenceID   *uint64        `json:"sequence_id" msgpack:"sequence_id" cbor:"sequence_id"`
}

func toWireEvent(e models.ChangeEvent) wireEvent {
	data := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		data[k] = v
	}
	data[models.DeviceIDKey] = e.DeviceID

	kind := string(e.Kind)
	createdAt := formatTime(e.Timestamp)
	return wireEvent{
		LocationID:   &e.LocationID,
		CreatedAt:    &createdAt,
		Data:         data,
		TypeOfObject: &kind,
		Channel:      &e.Channel,
		Action:       &e.Action,
		UUID:         &e.UUID,
		SequenceID:   &e.SequenceID,
	}
}

func (w wireEvent) toModel() (models.ChangeEvent, error) {
	switch {
	case w.LocationID == nil:
		return models.ChangeEvent{}, missing("location_id")
	case w.CreatedAt == nil:
		return models.ChangeEvent{}, missing("created_at")
	case w.Data == nil:
		return models.ChangeEvent{}, missing("data")
	case w.TypeOfObject == nil:
		return models.ChangeEvent{}, missing("type_of_object")
	case w.SequenceID == nil:
		return models.ChangeEvent{}, missing("sequence_id")
	}

	data, err := models.NormalizeAttributes(w.Data)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	raw, ok := data[models.DeviceIDKey]
	if !ok {
		return models.ChangeEvent{}, missing("data." + models.DeviceIDKey)
	}
	deviceID, ok := raw.(int64)
	if !ok {
		return models.ChangeEvent{}, fmt.Errorf("data.%s has type %T, want integer", models.DeviceIDKey, raw)
	}
	delete(data, models.DeviceIDKey)

	kind, err := models.ParseKind(*w.TypeOfObject)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	at, err := parseTime(*w.CreatedAt)
	if err != nil {
		return models.ChangeEvent{}, err
	}

	e := models.ChangeEvent{
		LocationID: *w.LocationID,
		DeviceID:   deviceID,
		SequenceID: *w.SequenceID,
		Timestamp:  at,
		Kind:       kind,
		Payload:    data,
		Channel:    deref(w.Channel),
		Action:     deref(w.Action),
		UUID:       deref(w.UUID),
	}
	if err := e.Validate(); err != nil {
		return models.ChangeEvent{}, err
	}
	return e, nil
}

type wireSnapshot struct {
	LocationID *string      `json:"location_id" msgpack:"location_id" cbor:"location_id"`
	TakenAt    *string      `json:"taken_at" msgpack:"taken_at" cbor:"taken_at"`
	ThroughAt  string       `json:"through_at" msgpack:"through_at" cbor:"through_at"`
	ThroughSeq uint64       `json:"through_seq" msgpack:"through_seq" cbor:"through_seq"`
	Folded     uint64       `json:"folded" msgpack:"folded" cbor:"folded"`
	Devices    []wireDevice `json:"devices" msgpack:"devices" cbor:"devices"`
}

type wireDevice struct {
	DeviceID   *int64         `json:"avid" msgpack:"avid" cbor:"avid"`
	LocationID string         `json:"location_id" msgpack:"location_id" cbor:"location_id"`
	Data       map[string]any `json:"data" msgpack:"data" cbor:"data"`
}

func toWireSnapshot(s models.Snapshot) wireSnapshot {
	ids := make([]int64, 0, len(s.Devices))
	for id := range s.Devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	devices := make([]wireDevice, 0, len(ids))
	for _, id := range ids {
		d := s.Devices[id]
		deviceID := id
		devices = append(devices, wireDevice{
			DeviceID:   &deviceID,
			LocationID: d.LocationID,
			Data:       map[string]any(d.Attributes),
		})
	}

	takenAt := formatTime(s.TakenAt)
	return wireSnapshot{
		LocationID: &s.LocationID,
		TakenAt:    &takenAt,
		ThroughAt:  formatTime(s.Through.At),
		ThroughSeq: s.Through.Seq,
		Folded:     s.Folded,
		Devices:    devices,
	}
}

func (w wireSnapshot) toModel() (models.Snapshot, error) {
	if w.LocationID == nil {
		return models.Snapshot{}, missing("location_id")
	}
	if w.TakenAt == nil {
		return models.Snapshot{}, missing("taken_at")
	}
	takenAt, err := parseTime(*w.TakenAt)
	if err != nil {
		return models.Snapshot{}, err
	}
	var throughAt time.Time
	if w.ThroughAt != "" {
		if throughAt, err = parseTime(w.ThroughAt); err != nil {
			return models.Snapshot{}, err
		}
	}

	devices := make(models.DeviceState, len(w.Devices))
	for i, d := range w.Devices {
		if d.DeviceID == nil {
			return models.Snapshot{}, missing(fmt.Sprintf("devices[%d].avid", i))
		}
		attrs, err := models.NormalizeAttributes(d.Data)
		if err != nil {
			return models.Snapshot{}, err
		}
		devices[*d.DeviceID] = models.Device{
			LocationID: d.LocationID,
			DeviceID:   *d.DeviceID,
			Attributes: attrs,
		}
	}

	return models.Snapshot{
		LocationID: *w.LocationID,
		TakenAt:    takenAt,
		Through:    models.Position{At: throughAt, Seq: w.ThroughSeq},
		Folded:     w.Folded,
		Devices:    devices,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339, the "2006-01-02 15:04:05 -0700" form and epoch seconds.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.CanonicalTime(t), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.CanonicalTime(time.Unix(secs, 0)), nil
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func missing(key string) error {
	return errors.New("missing required key " + key)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
