// Package merge folds change events into device state with field-level
// last-write-wins. It owns no persistent state: every fold starts from a
// fresh Accumulator or one seeded from a snapshot.
package merge

import (
	"fmt"
	"sort"
	"time"

	"github.com/prudhvinik1/meshlog/internal/codec"
	"github.com/prudhvinik1/meshlog/internal/models"
)

// Accumulator is the running result of a fold. It is not safe for
// concurrent use; give each reader its own.
type Accumulator struct {
	devices  models.DeviceState
	position models.Position
	applied  int
	skipped  int
	folded   uint64
}

func New() *Accumulator {
	return &Accumulator{devices: make(models.DeviceState)}
}

// FromSnapshot resumes a fold from a stored snapshot. Events at or before
// the snapshot's position are ignored by the returned accumulator.
func FromSnapshot(s models.Snapshot) *Accumulator {
	devices := s.Devices.Clone()
	if devices == nil {
		devices = make(models.DeviceState)
	}
	return &Accumulator{devices: devices, position: s.Through, folded: s.Folded}
}

// Apply folds one event. Events must arrive in position order; an event at
// or before the current position is a redelivery and is skipped.
func (a *Accumulator) Apply(e models.ChangeEvent) bool {
	pos := e.Position()
	if !a.position.IsZero() && !a.position.Before(pos) {
		a.skipped++
		return false
	}
	a.position = pos
	a.applied++
	a.folded++

	switch e.Kind {
	case models.KindDelete:
		delete(a.devices, e.DeviceID)
	case models.KindCreate, models.KindUpdate:
		// an update for an unknown device is an implicit create
		d, ok := a.devices[e.DeviceID]
		if !ok {
			d = models.Device{
				LocationID: e.LocationID,
				DeviceID:   e.DeviceID,
				Attributes: make(models.Attributes, len(e.Payload)),
			}
		}
		d.Attributes.Merge(e.Payload.Clone())
		a.devices[e.DeviceID] = d
	}
	return true
}

// ApplyAll folds one chunk of the log. The chunk is ordered by position
// before folding, so a page may arrive in any order.
func (a *Accumulator) ApplyAll(events []models.ChangeEvent) int {
	ordered := make([]models.ChangeEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position().Before(ordered[j].Position())
	})

	n := 0
	for _, e := range ordered {
		if a.Apply(e) {
			n++
		}
	}
	return n
}

// ApplyRaw decodes and folds encoded events. A body that fails to decode
// aborts the fold: skipping it would make the result depend on the reader.
func (a *Accumulator) ApplyRaw(c codec.Codec, bodies [][]byte) (int, error) {
	events := make([]models.ChangeEvent, len(bodies))
	for i, b := range bodies {
		e, err := c.DecodeEvent(b)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		events[i] = e
	}
	return a.ApplyAll(events), nil
}

// State returns a copy of the folded devices.
func (a *Accumulator) State() models.DeviceState {
	return a.devices.Clone()
}

// Device returns the merged device, if present.
func (a *Accumulator) Device(deviceID int64) (models.Device, bool) {
	d, ok := a.devices[deviceID]
	if !ok {
		return models.Device{}, false
	}
	d.Attributes = d.Attributes.Clone()
	return d, true
}

// Position is the position of the last applied event.
func (a *Accumulator) Position() models.Position {
	return a.position
}

// Applied counts the events that changed the accumulator's position.
func (a *Accumulator) Applied() int {
	return a.applied
}

// Skipped counts the events ignored for being at or before the position.
func (a *Accumulator) Skipped() int {
	return a.skipped
}

// Folded counts every event in the state, including those of the snapshot
// the accumulator was seeded from.
func (a *Accumulator) Folded() uint64 {
	return a.folded
}

func (a *Accumulator) Len() int {
	return len(a.devices)
}

// Snapshot materializes the accumulator for the snapshot store.
func (a *Accumulator) Snapshot(locationID string, takenAt time.Time) models.Snapshot {
	return models.Snapshot{
		LocationID: locationID,
		TakenAt:    models.CanonicalTime(takenAt),
		Through:    a.position,
		Folded:     a.folded,
		Devices:    a.State(),
	}
}

// Fold is the pure form: events in any order in, device state out.
func Fold(events []models.ChangeEvent) models.DeviceState {
	acc := New()
	acc.ApplyAll(events)
	return acc.State()
}
