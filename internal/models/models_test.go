package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAttributes(t *testing.T) {
	attrs, err := NormalizeAttributes(map[string]any{
		"vendor_code": 2,
		"small":       uint8(7),
		"huge":        uint64(math.MaxUint64),
		"ratio":       float32(0.5),
		"version":     []string{"2.1.2"},
		"nested":      map[any]any{"level": json.Number("3")},
		"name":        "GE In Wall Dimmer",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), attrs["vendor_code"])
	assert.Equal(t, int64(7), attrs["small"])
	assert.Equal(t, uint64(math.MaxUint64), attrs["huge"])
	assert.Equal(t, float64(0.5), attrs["ratio"])
	assert.Equal(t, []any{"2.1.2"}, attrs["version"])
	assert.Equal(t, map[string]any{"level": int64(3)}, attrs["nested"])
	assert.Equal(t, "GE In Wall Dimmer", attrs["name"])
}

func TestNormalizeAttributes_RejectsUnsupported(t *testing.T) {
	_, err := NormalizeAttributes(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)

	_, err = NormalizeAttributes(map[string]any{"m": map[any]any{1: "x"}})
	assert.Error(t, err)

	_, err = NormalizeAttributes(map[string]any{"blob": []byte{1, 2}})
	assert.Error(t, err)

	_, err = NormalizeAttributes(map[string]any{"level": math.NaN()})
	assert.Error(t, err)

	_, err = NormalizeAttributes(map[string]any{"level": math.Inf(1)})
	assert.Error(t, err)
}

func TestNormalizeAttributes_IntegralFloats(t *testing.T) {
	attrs, err := NormalizeAttributes(map[string]any{
		"level":    1.0,
		"negative": float32(-4),
		"fraction": 1.5,
		"above":    float64(1 << 63),
		"beyond":   1e20,
		"exponent": json.Number("1e3"),
		"unsigned": json.Number("18446744073709551615"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), attrs["level"])
	assert.Equal(t, int64(-4), attrs["negative"])
	assert.Equal(t, 1.5, attrs["fraction"])
	assert.Equal(t, uint64(1<<63), attrs["above"])
	assert.Equal(t, 1e20, attrs["beyond"])
	assert.Equal(t, int64(1000), attrs["exponent"])
	assert.Equal(t, uint64(math.MaxUint64), attrs["unsigned"])
}

func TestAttributes_CloneIsDeep(t *testing.T) {
	attrs, err := NormalizeAttributes(map[string]any{"nested": map[string]any{"a": 1}})
	require.NoError(t, err)

	clone := attrs.Clone()
	clone["nested"].(map[string]any)["a"] = int64(2)

	assert.Equal(t, int64(1), attrs["nested"].(map[string]any)["a"])
}

func TestChangeEvent_Validate(t *testing.T) {
	now := time.Now()

	_, err := NewCreateEvent("", 1, 1, "u", now, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewCreateEvent("loc", 0, 1, "u", now, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewUpdateEvent("loc", 1, 1, "u", time.Time{}, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewCreateEvent("loc", 1, 0, "u", now, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewUpdateEvent("loc", 1, 1, "u", now, map[string]any{DeviceIDKey: 5})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	e, err := NewDeleteEvent("loc", 1, 1, "u", now)
	require.NoError(t, err)
	assert.Empty(t, e.Payload)
	assert.Equal(t, ObjectTypeDevice, e.ObjectType())
	assert.Equal(t, ChannelMesh, e.Channel)
	assert.Equal(t, ActionCreate, e.Action)
}

func TestEventKey_RoundTrip(t *testing.T) {
	key := EventKey(32805, 17)
	assert.Equal(t, "device:32805:seq:17", key)

	dev, seq, err := ParseEventKey(key)
	require.NoError(t, err)
	assert.Equal(t, int64(32805), dev)
	assert.Equal(t, uint64(17), seq)

	_, _, err = ParseEventKey("device:abc:seq:1")
	assert.Error(t, err)
	_, _, err = ParseEventKey("sensor:1:seq:1")
	assert.Error(t, err)

	assert.Equal(t, "device:32805:seq:*", DeviceKeyPattern(32805))
}

func TestPosition_Compare(t *testing.T) {
	at := time.Unix(100, 0)
	a := Position{At: at, Seq: 1}
	b := Position{At: at, Seq: 2}
	c := Position{At: at.Add(time.Microsecond), Seq: 0}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, Position{}.IsZero())
}
