package services

import (
	"context"
	"sort"

	"github.com/prudhvinik1/meshlog/internal/merge"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
)

// LookupService answers point queries through the device index, without
// scanning the location's full log.
type LookupService struct {
	events repositories.EventLogRepository
}

func NewLookupService(events repositories.EventLogRepository) *LookupService {
	return &LookupService{events: events}
}

// Find returns the device's events, oldest first. No match is an empty slice.
func (s *LookupService) Find(ctx context.Context, locationID string, deviceID int64) ([]models.ChangeEvent, error) {
	keys, err := s.events.ScanByDevice(ctx, locationID, deviceID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []models.ChangeEvent{}, nil
	}

	events, err := s.events.GetEvents(ctx, locationID, keys)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Position().Before(events[j].Position())
	})
	return events, nil
}

// FindState folds the device's events. It returns nil when the device
// never existed or was deleted.
func (s *LookupService) FindState(ctx context.Context, locationID string, deviceID int64) (*models.Device, error) {
	events, err := s.Find(ctx, locationID, deviceID)
	if err != nil {
		return nil, err
	}

	acc := merge.New()
	acc.ApplyAll(events)

	d, ok := acc.Device(deviceID)
	if !ok {
		return nil, nil
	}
	return &d, nil
}
