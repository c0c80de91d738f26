package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	deviceKeyPrefix = "device:"
	seqKeySeparator = ":seq:"
)

// Position orders events in the log: timestamp first, sequence id as tiebreak.
type Position struct {
	At  time.Time `json:"at"`
	Seq uint64    `json:"seq"`
}

func (p Position) IsZero() bool {
	return p.At.IsZero() && p.Seq == 0
}

func (p Position) Compare(o Position) int {
	if c := p.At.Compare(o.At); c != 0 {
		return c
	}
	switch {
	case p.Seq < o.Seq:
		return -1
	case p.Seq > o.Seq:
		return 1
	}
	return 0
}

func (p Position) Before(o Position) bool {
	return p.Compare(o) < 0
}

func EventKey(deviceID int64, seq uint64) string {
	return fmt.Sprintf("%s%d%s%d", deviceKeyPrefix, deviceID, seqKeySeparator, seq)
}

// DeviceKeyPattern matches every compound key of a device in a ZSCAN/SCAN.
func DeviceKeyPattern(deviceID int64) string {
	return fmt.Sprintf("%s%d%s*", deviceKeyPrefix, deviceID, seqKeySeparator)
}

// ParseEventKey splits a compound key back into device id and sequence id.
func ParseEventKey(key string) (int64, uint64, error) {
	rest, ok := strings.CutPrefix(key, deviceKeyPrefix)
	if !ok {
		return 0, 0, fmt.Errorf("malformed event key %q", key)
	}
	dev, seq, ok := strings.Cut(rest, seqKeySeparator)
	if !ok {
		return 0, 0, fmt.Errorf("malformed event key %q", key)
	}
	deviceID, err := strconv.ParseInt(dev, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed device id in key %q: %w", key, err)
	}
	seqID, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed sequence id in key %q: %w", key, err)
	}
	return deviceID, seqID, nil
}
