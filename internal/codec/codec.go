// Package codec serializes change events and snapshots. Every codec
// agrees on the same logical wire shape and differs only in representation,
// so codecs can be swapped without touching any other component.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prudhvinik1/meshlog/internal/models"
)

// ErrCorruptRecord is returned when stored bytes do not match the wire shape
var ErrCorruptRecord = errors.New("corrupt record")

type Codec interface {
	Name() string
	EncodeEvent(e models.ChangeEvent) ([]byte, error)
	DecodeEvent(b []byte) (models.ChangeEvent, error)
	EncodeSnapshot(s models.Snapshot) ([]byte, error)
	DecodeSnapshot(b []byte) (models.Snapshot, error)
}

// ByName returns the codec registered under name: json, msgpack or cbor.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return NewJSONCodec(), nil
	case "msgpack", "messagepack":
		return NewMsgPackCodec(), nil
	case "cbor":
		return NewCBORCodec(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// All returns one instance of every supported codec.
func All() []Codec {
	return []Codec{NewJSONCodec(), NewMsgPackCodec(), NewCBORCodec()}
}

type marshalFunc func(v any) ([]byte, error)
type unmarshalFunc func(b []byte, v any) error

func encodeEvent(marshal marshalFunc, e models.ChangeEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	b, err := marshal(toWireEvent(e))
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", e.Key(), err)
	}
	return b, nil
}

func decodeEvent(unmarshal unmarshalFunc, b []byte) (models.ChangeEvent, error) {
	var w wireEvent
	if err := unmarshal(b, &w); err != nil {
		return models.ChangeEvent{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	e, err := w.toModel()
	if err != nil {
		return models.ChangeEvent{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return e, nil
}

func encodeSnapshot(marshal marshalFunc, s models.Snapshot) ([]byte, error) {
	b, err := marshal(toWireSnapshot(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(unmarshal unmarshalFunc, b []byte) (models.Snapshot, error) {
	var w wireSnapshot
	if err := unmarshal(b, &w); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	s, err := w.toModel()
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return s, nil
}
