package services

import (
	"context"
	"errors"
	"time"

	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
)

// SnapshotService is the only writer of snapshots. A snapshot is a cache:
// the event log stays authoritative.
type SnapshotService struct {
	snapshots repositories.SnapshotRepository
	replay    *ReplayService
	now       func() time.Time
}

func NewSnapshotService(snapshots repositories.SnapshotRepository, replay *ReplayService) *SnapshotService {
	return &SnapshotService{snapshots: snapshots, replay: replay, now: time.Now}
}

// StoreSnapshot persists a caller-supplied state. It carries no log
// position, so CurrentState will not resume from it.
func (s *SnapshotService) StoreSnapshot(ctx context.Context, locationID string, state models.DeviceState) (models.Snapshot, error) {
	if state == nil {
		state = models.DeviceState{}
	}
	snap := models.Snapshot{
		LocationID: locationID,
		TakenAt:    models.CanonicalTime(s.now()),
		Devices:    state.Clone(),
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// LatestSnapshot returns nil when the location has no snapshot.
func (s *SnapshotService) LatestSnapshot(ctx context.Context, locationID string) (*models.Snapshot, error) {
	snap, err := s.snapshots.Latest(ctx, locationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Checkpoint folds the events appended since the latest snapshot and
// stores the result with its log position. When nothing was appended the
// latest snapshot is returned as is.
func (s *SnapshotService) Checkpoint(ctx context.Context, locationID string) (models.Snapshot, error) {
	acc, latest, refolded, err := s.replay.Current(ctx, locationID)
	if err != nil {
		return models.Snapshot{}, err
	}

	if latest != nil && !latest.Through.IsZero() && !refolded && acc.Applied() == 0 {
		return *latest, nil
	}

	snap := acc.Snapshot(locationID, s.now())
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// SnapshotScheduler checkpoints a fixed set of locations on an interval.
type SnapshotScheduler struct {
	snapshots *SnapshotService
	interval  time.Duration
	locations []string

	// OnCheckpoint and OnError are optional hooks, called from the Run goroutine
	OnCheckpoint func(snap models.Snapshot)
	OnError      func(locationID string, err error)
}

func NewSnapshotScheduler(snapshots *SnapshotService, interval time.Duration, locations []string) *SnapshotScheduler {
	return &SnapshotScheduler{snapshots: snapshots, interval: interval, locations: locations}
}

// Run blocks until ctx is canceled. A failing location does not stop the others.
func (s *SnapshotScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.checkpointAll(ctx)
		}
	}
}

func (s *SnapshotScheduler) checkpointAll(ctx context.Context) {
	for _, locationID := range s.locations {
		snap, err := s.snapshots.Checkpoint(ctx, locationID)
		if err != nil {
			if s.OnError != nil {
				s.OnError(locationID, err)
			}
			continue
		}
		if s.OnCheckpoint != nil {
			s.OnCheckpoint(snap)
		}
	}
}
