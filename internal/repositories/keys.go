package repositories

import (
	"fmt"
	"strconv"
	"time"
)

const (
	changesKeyFormat  = "location:%s:changes"
	indexKeyFormat    = "location:%s:index"
	changeIDKeyFormat = "location:%s:change_id"
	deviceIDKeyFormat = "location:%s:avid"
	snapshotKeyFormat = "location:%s:snapshot"
)

func changesKey(locationID string) string  { return fmt.Sprintf(changesKeyFormat, locationID) }
func indexKey(locationID string) string    { return fmt.Sprintf(indexKeyFormat, locationID) }
func changeIDKey(locationID string) string { return fmt.Sprintf(changeIDKeyFormat, locationID) }
func deviceIDKey(locationID string) string { return fmt.Sprintf(deviceIDKeyFormat, locationID) }
func snapshotKey(locationID string) string { return fmt.Sprintf(snapshotKeyFormat, locationID) }

// score maps a timestamp onto a sorted set score. Microseconds keep the
// value inside the exact integer range of a float64.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
