package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
)

// ChangeLogService is the producer side of the log. It owns device id
// allocation and stamps every event with a sequence id, a uuid and a
// timestamp that never goes backwards for a location.
type ChangeLogService struct {
	events repositories.EventLogRepository
	ids    repositories.DeviceIDAllocator
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

type ChangeLogOption func(*ChangeLogService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ChangeLogOption {
	return func(s *ChangeLogService) {
		s.now = now
	}
}

func NewChangeLogService(events repositories.EventLogRepository, ids repositories.DeviceIDAllocator, opts ...ChangeLogOption) *ChangeLogService {
	s := &ChangeLogService{
		events: events,
		ids:    ids,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChangeLogService) CreateDevice(ctx context.Context, locationID string, attrs map[string]any) (models.ChangeEvent, error) {
	// reject bad input before burning a device id
	if _, err := buildEvent(models.KindCreate, locationID, 1, 1, "", s.now(), attrs); err != nil {
		return models.ChangeEvent{}, err
	}

	deviceID, err := s.ids.Next(ctx, locationID)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	return s.record(ctx, models.KindCreate, locationID, deviceID, attrs)
}

func (s *ChangeLogService) UpdateDevice(ctx context.Context, locationID string, deviceID int64, attrs map[string]any) (models.ChangeEvent, error) {
	if _, err := buildEvent(models.KindUpdate, locationID, deviceID, 1, "", s.now(), attrs); err != nil {
		return models.ChangeEvent{}, err
	}
	return s.record(ctx, models.KindUpdate, locationID, deviceID, attrs)
}

func (s *ChangeLogService) DeleteDevice(ctx context.Context, locationID string, deviceID int64) (models.ChangeEvent, error) {
	if _, err := buildEvent(models.KindDelete, locationID, deviceID, 1, "", s.now(), nil); err != nil {
		return models.ChangeEvent{}, err
	}
	return s.record(ctx, models.KindDelete, locationID, deviceID, nil)
}

// record stamps and appends one event. On a partial append the event is
// returned along with the error so the caller can Reindex it.
func (s *ChangeLogService) record(ctx context.Context, kind models.Kind, locationID string, deviceID int64, attrs map[string]any) (models.ChangeEvent, error) {
	seq, at, err := s.stamp(ctx, locationID)
	if err != nil {
		return models.ChangeEvent{}, err
	}

	e, err := buildEvent(kind, locationID, deviceID, seq, uuid.NewString(), at, attrs)
	if err != nil {
		return models.ChangeEvent{}, err
	}

	if _, err := s.events.Append(ctx, e); err != nil {
		return e, err
	}
	return e, nil
}

// stamp hands out the sequence id and the timestamp under one lock, so a
// higher sequence id from this producer never carries an earlier timestamp.
func (s *ChangeLogService) stamp(ctx context.Context, locationID string) (uint64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.events.NextSequence(ctx, locationID)
	if err != nil {
		return 0, time.Time{}, err
	}

	at := models.CanonicalTime(s.now())
	if last, ok := s.last[locationID]; ok && at.Before(last) {
		at = last
	}
	s.last[locationID] = at
	return seq, at, nil
}

func buildEvent(kind models.Kind, locationID string, deviceID int64, seq uint64, id string, at time.Time, attrs map[string]any) (models.ChangeEvent, error) {
	switch kind {
	case models.KindCreate:
		return models.NewCreateEvent(locationID, deviceID, seq, id, at, attrs)
	case models.KindUpdate:
		return models.NewUpdateEvent(locationID, deviceID, seq, id, at, attrs)
	}
	return models.NewDeleteEvent(locationID, deviceID, seq, id, at)
}
