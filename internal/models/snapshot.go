package models

import "time"

// Snapshot is a timestamped materialization of a location's DeviceState.
// Through is the position of the last event folded into it and Folded the
// number of log events it holds, all of them at or before Through.
type Snapshot struct {
	LocationID string      `json:"location_id"`
	TakenAt    time.Time   `json:"taken_at"`
	Through    Position    `json:"through"`
	Folded     uint64      `json:"folded"`
	Devices    DeviceState `json:"devices"`
}
