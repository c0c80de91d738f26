package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent is returned when an event is missing its location, device or timestamp
var ErrInvalidEvent = errors.New("invalid change event")

type Kind string

const (
	KindCreate Kind = "device"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

const (
	ObjectTypeDevice = "device"
	ChannelMesh      = "mesh"
	ActionCreate     = "create"

	// DeviceIDKey is the attribute name carrying the device id inside data
	DeviceIDKey = "avid"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCreate, KindUpdate, KindDelete:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

type ChangeEvent struct {
	LocationID string     `json:"location_id"`
	DeviceID   int64      `json:"device_id"`
	SequenceID uint64     `json:"sequence_id"`
	UUID       string     `json:"uuid"`
	Timestamp  time.Time  `json:"created_at"`
	Kind       Kind       `json:"type_of_object"`
	Payload    Attributes `json:"data"`
	Channel    string     `json:"channel"`
	Action     string     `json:"action"`
}

// NewCreateEvent builds a Create event carrying the full initial attribute set.
func NewCreateEvent(locationID string, deviceID int64, seq uint64, id string, at time.Time, attrs map[string]any) (ChangeEvent, error) {
	return newEvent(KindCreate, locationID, deviceID, seq, id, at, attrs)
}

// NewUpdateEvent builds an Update event carrying only the changed attributes.
func NewUpdateEvent(locationID string, deviceID int64, seq uint64, id string, at time.Time, attrs map[string]any) (ChangeEvent, error) {
	return newEvent(KindUpdate, locationID, deviceID, seq, id, at, attrs)
}

// NewDeleteEvent builds a Delete event. Its payload is always empty.
func NewDeleteEvent(locationID string, deviceID int64, seq uint64, id string, at time.Time) (ChangeEvent, error) {
	return newEvent(KindDelete, locationID, deviceID, seq, id, at, nil)
}

func newEvent(kind Kind, locationID string, deviceID int64, seq uint64, id string, at time.Time, attrs map[string]any) (ChangeEvent, error) {
	payload, err := NormalizeAttributes(attrs)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	e := ChangeEvent{
		LocationID: locationID,
		DeviceID:   deviceID,
		SequenceID: seq,
		UUID:       id,
		Timestamp:  CanonicalTime(at),
		Kind:       kind,
		Payload:    payload,
		Channel:    ChannelMesh,
		Action:     ActionCreate,
	}

	if err := e.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return e, nil
}

// Validate fails fast on events that must never reach the log.
func (e ChangeEvent) Validate() error {
	if e.LocationID == "" {
		return fmt.Errorf("%w: location_id is required", ErrInvalidEvent)
	}
	if e.DeviceID <= 0 {
		return fmt.Errorf("%w: device_id is required", ErrInvalidEvent)
	}
	if e.SequenceID == 0 {
		return fmt.Errorf("%w: sequence_id is required", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrInvalidEvent)
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if _, ok := e.Payload[DeviceIDKey]; ok {
		return fmt.Errorf("%w: %q is a reserved attribute", ErrInvalidEvent, DeviceIDKey)
	}
	if e.Kind == KindDelete && len(e.Payload) > 0 {
		return fmt.Errorf("%w: delete events carry no attributes", ErrInvalidEvent)
	}
	return nil
}

// ObjectType is the fixed discriminator of every event in the log.
func (e ChangeEvent) ObjectType() string {
	return ObjectTypeDevice
}

// Key is the compound key used both as the hash field of the body
// and as the sorted set member of the time index.
func (e ChangeEvent) Key() string {
	return EventKey(e.DeviceID, e.SequenceID)
}

func (e ChangeEvent) Position() Position {
	return Position{At: e.Timestamp, Seq: e.SequenceID}
}

// CanonicalTime strips the monotonic reading and the zone so that
// timestamps compare equal after a round trip through any codec.
func CanonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.Round(0).UTC()
}
