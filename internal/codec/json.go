package codec

import (
	"bytes"
	"encoding/json"

	"github.com/prudhvinik1/meshlog/internal/models"
)

// JSONCodec stores events as JSON documents. Numbers are decoded with
// UseNumber so integers survive the round trip as int64.
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (c *JSONCodec) Name() string { return "json" }

func (c *JSONCodec) EncodeEvent(e models.ChangeEvent) ([]byte, error) {
	return encodeEvent(json.Marshal, e)
}

func (c *JSONCodec) DecodeEvent(b []byte) (models.ChangeEvent, error) {
	return decodeEvent(unmarshalJSON, b)
}

func (c *JSONCodec) EncodeSnapshot(s models.Snapshot) ([]byte, error) {
	return encodeSnapshot(json.Marshal, s)
}

func (c *JSONCodec) DecodeSnapshot(b []byte) (models.Snapshot, error) {
	return decodeSnapshot(unmarshalJSON, b)
}

func unmarshalJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}
