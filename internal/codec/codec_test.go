package codec

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func sampleEvents(t *testing.T) []models.ChangeEvent {
	at := time.Date(2020, 6, 27, 5, 54, 6, 123456789, time.FixedZone("BRT", -3*3600))

	create, err := models.NewCreateEvent("1", 32801, 1, "3f1d6c2e-7a7d-4c55-9d8c-2f0f3e0b8e11", at, map[string]any{
		"vendor_code":  2,
		"mac_address":  "a1b2c3d4e5f6",
		"product_code": 3,
		"mesh_status":  "available",
		"name":         "GE In Wall Dimmer",
		"dimmable":     true,
		"level":        0.75,
		"brightness":   1.0,
		"threshold":    -3.0,
		"huge":         uint64(math.MaxUint64),
		"big_float":    1e20,
		"offset":       -12,
		"firmware":     nil,
		"version":      []any{"2.1.2"},
		"location":     map[string]any{"room": "kitchen", "floor": 2},
	})
	require.NoError(t, err)

	update, err := models.NewUpdateEvent("1", 32801, 2, "9b5e7a40-6f0e-4bd5-a3c6-7d2a1a0f5c22", at.Add(time.Second), map[string]any{
		"name": "New Name 32801",
	})
	require.NoError(t, err)

	del, err := models.NewDeleteEvent("1", 32801, 3, "0c8a4b1e-52c1-4a7e-8e1f-3b9d2e6f7a33", at.Add(2*time.Second))
	require.NoError(t, err)

	return []models.ChangeEvent{create, update, del}
}

func TestCodecs_RoundTripEvents(t *testing.T) {
	for _, c := range All() {
		t.Run(c.Name(), func(t *testing.T) {
			for _, e := range sampleEvents(t) {
				b, err := c.EncodeEvent(e)
				require.NoError(t, err)

				decoded, err := c.DecodeEvent(b)
				require.NoError(t, err)
				assert.Equal(t, e, decoded)
			}
		})
	}
}

func TestCodecs_AgreeOnLogicalSchema(t *testing.T) {
	events := sampleEvents(t)
	codecs := All()

	for _, e := range events {
		var decoded []models.ChangeEvent
		for _, c := range codecs {
			b, err := c.EncodeEvent(e)
			require.NoError(t, err)
			d, err := c.DecodeEvent(b)
			require.NoError(t, err)
			decoded = append(decoded, d)
		}
		for i := 1; i < len(decoded); i++ {
			assert.Equal(t, decoded[0], decoded[i], "%s disagrees with %s", codecs[i].Name(), codecs[0].Name())
		}
	}
}

func TestCodecs_RoundTripSnapshot(t *testing.T) {
	events := sampleEvents(t)
	snap := models.Snapshot{
		LocationID: "1",
		TakenAt:    models.CanonicalTime(time.Now()),
		Through:    events[1].Position(),
		Folded:     2,
		Devices: models.DeviceState{
			32801: {LocationID: "1", DeviceID: 32801, Attributes: events[0].Payload},
			32802: {LocationID: "1", DeviceID: 32802, Attributes: models.Attributes{"name": "Lamp"}},
		},
	}

	for _, c := range All() {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.EncodeSnapshot(snap)
			require.NoError(t, err)

			decoded, err := c.DecodeSnapshot(b)
			require.NoError(t, err)
			assert.Equal(t, snap, decoded)
		})
	}
}

func TestCodecs_EmptySnapshot(t *testing.T) {
	snap := models.Snapshot{LocationID: "7", TakenAt: models.CanonicalTime(time.Now()), Devices: models.DeviceState{}}

	for _, c := range All() {
		b, err := c.EncodeSnapshot(snap)
		require.NoError(t, err)

		decoded, err := c.DecodeSnapshot(b)
		require.NoError(t, err)
		assert.True(t, decoded.Through.IsZero())
		assert.Empty(t, decoded.Devices)
	}
}

func TestCodecs_CorruptRecord(t *testing.T) {
	for _, c := range All() {
		t.Run(c.Name(), func(t *testing.T) {
			_, err := c.DecodeEvent([]byte{0xc1, 0xff, 0x00})
			assert.ErrorIs(t, err, ErrCorruptRecord)

			_, err = c.DecodeSnapshot([]byte("not a snapshot"))
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestJSONCodec_MissingKeysAreCorrupt(t *testing.T) {
	c := NewJSONCodec()

	cases := map[string]string{
		"no location":  `{"created_at":"2020-06-27T08:54:06Z","data":{"avid":1},"type_of_object":"device","sequence_id":1}`,
		"no avid":      `{"location_id":"1","created_at":"2020-06-27T08:54:06Z","data":{},"type_of_object":"device","sequence_id":1}`,
		"string avid":  `{"location_id":"1","created_at":"2020-06-27T08:54:06Z","data":{"avid":"x"},"type_of_object":"device","sequence_id":1}`,
		"bad kind":     `{"location_id":"1","created_at":"2020-06-27T08:54:06Z","data":{"avid":1},"type_of_object":"sensor","sequence_id":1}`,
		"bad time":     `{"location_id":"1","created_at":"yesterday","data":{"avid":1},"type_of_object":"device","sequence_id":1}`,
		"no sequence":  `{"location_id":"1","created_at":"2020-06-27T08:54:06Z","data":{"avid":1},"type_of_object":"device"}`,
		"wrong type":   `{"location_id":1,"created_at":"2020-06-27T08:54:06Z","data":{"avid":1},"type_of_object":"device","sequence_id":1}`,
		"empty object": `{}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.DecodeEvent([]byte(raw))
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestMsgPackCodec_MissingKeysAreCorrupt(t *testing.T) {
	b, err := msgpack.Marshal(map[string]any{
		"location_id":    "1",
		"created_at":     "2020-06-27T08:54:06Z",
		"type_of_object": "update",
		"sequence_id":    4,
	})
	require.NoError(t, err)

	_, err = NewMsgPackCodec().DecodeEvent(b)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestJSONCodec_AcceptsLegacyTimestamps(t *testing.T) {
	c := NewJSONCodec()

	legacy := map[string]any{
		"location_id":    "1",
		"created_at":     "2020-06-27 05:54:06 -0300",
		"data":           map[string]any{"avid": 32801, "version": []string{"2.1.2"}},
		"type_of_object": "update",
		"channel":        "mesh",
		"action":         "create",
		"uuid":           "u-1",
		"sequence_id":    2,
	}
	b, err := json.Marshal(legacy)
	require.NoError(t, err)

	e, err := c.DecodeEvent(b)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 6, 27, 8, 54, 6, 0, time.UTC), e.Timestamp)
	assert.Equal(t, models.KindUpdate, e.Kind)
	assert.Equal(t, int64(32801), e.DeviceID)
	assert.Equal(t, models.Attributes{"version": []any{"2.1.2"}}, e.Payload)

	legacy["created_at"] = "1593248046"
	b, err = json.Marshal(legacy)
	require.NoError(t, err)

	e, err = c.DecodeEvent(b)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1593248046, 0).UTC(), e.Timestamp)
}

func TestCodecs_IntegralFloatsDecodeAsIntegers(t *testing.T) {
	e := sampleEvents(t)[0]
	for _, c := range All() {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.EncodeEvent(e)
			require.NoError(t, err)

			decoded, err := c.DecodeEvent(b)
			require.NoError(t, err)
			assert.Equal(t, int64(1), decoded.Payload["brightness"])
			assert.Equal(t, int64(-3), decoded.Payload["threshold"])
			assert.Equal(t, 0.75, decoded.Payload["level"])
			assert.Equal(t, uint64(math.MaxUint64), decoded.Payload["huge"])
			assert.Equal(t, 1e20, decoded.Payload["big_float"])
		})
	}
}

func TestCodecs_RejectByteSlices(t *testing.T) {
	_, err := models.NewCreateEvent("1", 32801, 1, "u", time.Now(), map[string]any{"blob": []byte{1, 2}})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
}

func TestCodecs_RejectInvalidEvent(t *testing.T) {
	for _, c := range All() {
		_, err := c.EncodeEvent(models.ChangeEvent{LocationID: "1", Kind: models.KindCreate})
		assert.ErrorIs(t, err, models.ErrInvalidEvent)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "cbor", "MessagePack"} {
		c, err := ByName(name)
		require.NoError(t, err)
		assert.NotNil(t, c)
	}

	_, err := ByName("oj")
	assert.Error(t, err)
}
