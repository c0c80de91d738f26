package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/prudhvinik1/meshlog/internal/models"
)

// CBORCodec encodes with canonical CBOR so equal events produce equal bytes.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec() *CBORCodec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBORCodec{enc: enc, dec: dec}
}

func (c *CBORCodec) Name() string { return "cbor" }

func (c *CBORCodec) EncodeEvent(e models.ChangeEvent) ([]byte, error) {
	return encodeEvent(c.enc.Marshal, e)
}

func (c *CBORCodec) DecodeEvent(b []byte) (models.ChangeEvent, error) {
	return decodeEvent(c.dec.Unmarshal, b)
}

func (c *CBORCodec) EncodeSnapshot(s models.Snapshot) ([]byte, error) {
	return encodeSnapshot(c.enc.Marshal, s)
}

func (c *CBORCodec) DecodeSnapshot(b []byte) (models.Snapshot, error) {
	return decodeSnapshot(c.dec.Unmarshal, b)
}
