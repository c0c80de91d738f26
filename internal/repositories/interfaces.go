package repositories

import (
	"context"
	"time"

	"github.com/prudhvinik1/meshlog/internal/models"
)

type EventLogRepository interface {
	NextSequence(ctx context.Context, locationID string) (uint64, error)
	Append(ctx context.Context, event models.ChangeEvent) (string, error)
	Reindex(ctx context.Context, event models.ChangeEvent) error
	ScanByTime(locationID string, opts ScanOptions) EventCursor
	Range(ctx context.Context, locationID string, offset, limit int64, descending bool) ([]models.ChangeEvent, error)
	ScanByDevice(ctx context.Context, locationID string, deviceID int64) ([]string, error)
	Get(ctx context.Context, locationID string, keys []string) ([][]byte, error)
	GetEvents(ctx context.Context, locationID string, keys []string) ([]models.ChangeEvent, error)
	Count(ctx context.Context, locationID string) (int64, error)
	CountBefore(ctx context.Context, locationID string, at time.Time) (int64, error)
	Reset(ctx context.Context, locationID string) error
}

// EventCursor pages through a location's log. Next returns io.EOF once the
// range is exhausted; Reset rewinds to the start of the range.
type EventCursor interface {
	Next(ctx context.Context) ([]models.ChangeEvent, error)
	Reset()
}

// ScanOptions bounds a time scan. Zero Start or End leaves that side open.
type ScanOptions struct {
	Start      time.Time
	End        time.Time
	PageSize   int
	Descending bool
}

type DeviceIDAllocator interface {
	Next(ctx context.Context, locationID string) (int64, error)
}

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot models.Snapshot) error
	Latest(ctx context.Context, locationID string) (*models.Snapshot, error)
}
