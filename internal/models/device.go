package models

// Device is the merged view of one device. It only exists inside a DeviceState.
type Device struct {
	LocationID string     `json:"location_id"`
	DeviceID   int64      `json:"avid"`
	Attributes Attributes `json:"data"`
}

// DeviceState maps device id to merged device.
type DeviceState map[int64]Device

func (s DeviceState) Clone() DeviceState {
	out := make(DeviceState, len(s))
	for id, d := range s {
		d.Attributes = d.Attributes.Clone()
		out[id] = d
	}
	return out
}
