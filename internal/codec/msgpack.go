package codec

import (
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackCodec is the length-prefixed binary codec.
type MsgPackCodec struct{}

func NewMsgPackCodec() *MsgPackCodec {
	return &MsgPackCodec{}
}

func (c *MsgPackCodec) Name() string { return "msgpack" }

func (c *MsgPackCodec) EncodeEvent(e models.ChangeEvent) ([]byte, error) {
	return encodeEvent(msgpack.Marshal, e)
}

func (c *MsgPackCodec) DecodeEvent(b []byte) (models.ChangeEvent, error) {
	return decodeEvent(msgpack.Unmarshal, b)
}

func (c *MsgPackCodec) EncodeSnapshot(s models.Snapshot) ([]byte, error) {
	return encodeSnapshot(msgpack.Marshal, s)
}

func (c *MsgPackCodec) DecodeSnapshot(b []byte) (models.Snapshot, error) {
	return decodeSnapshot(msgpack.Unmarshal, b)
}
