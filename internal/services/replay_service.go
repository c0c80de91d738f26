package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/prudhvinik1/meshlog/internal/merge"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/prudhvinik1/meshlog/internal/repositories"
	"golang.org/x/sync/errgroup"
)

// ReplayService rebuilds device state from the log, optionally starting
// from the latest snapshot.
type ReplayService struct {
	events    repositories.EventLogRepository
	snapshots repositories.SnapshotRepository
	pageSize  int
}

func NewReplayService(events repositories.EventLogRepository, snapshots repositories.SnapshotRepository, pageSize int) *ReplayService {
	if pageSize <= 0 {
		pageSize = repositories.DefaultPageSize
	}
	return &ReplayService{events: events, snapshots: snapshots, pageSize: pageSize}
}

// Fold replays the whole log of a location.
func (s *ReplayService) Fold(ctx context.Context, locationID string) (*merge.Accumulator, error) {
	acc := merge.New()
	if err := s.FoldFrom(ctx, locationID, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// FoldFrom feeds every event after the accumulator's position into it.
func (s *ReplayService) FoldFrom(ctx context.Context, locationID string, acc *merge.Accumulator) error {
	cur := s.events.ScanByTime(locationID, repositories.ScanOptions{
		Start:    acc.Position().At,
		PageSize: s.pageSize,
	})

	for {
		page, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		acc.ApplyAll(page)
	}
}

// Resume returns an accumulator seeded from the latest snapshot that
// records its log position, or an empty one.
func (s *ReplayService) Resume(ctx context.Context, locationID string) (*merge.Accumulator, *models.Snapshot, error) {
	if s.snapshots == nil {
		return merge.New(), nil, nil
	}

	latest, err := s.snapshots.Latest(ctx, locationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return merge.New(), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	// a snapshot without a position cannot say which events it already holds
	if latest.Through.IsZero() {
		return merge.New(), latest, nil
	}
	return merge.FromSnapshot(*latest), latest, nil
}

// Current folds the events after the latest snapshot on top of it. A
// producer with a lagging clock can append behind the snapshot's position;
// when the log holds more events up to that position than the snapshot
// folded, the snapshot is stale and the whole log is folded instead.
// refolded reports that fallback.
func (s *ReplayService) Current(ctx context.Context, locationID string) (*merge.Accumulator, *models.Snapshot, bool, error) {
	acc, latest, err := s.Resume(ctx, locationID)
	if err != nil {
		return nil, nil, false, err
	}
	if err := s.FoldFrom(ctx, locationID, acc); err != nil {
		return nil, nil, false, err
	}
	if latest == nil || latest.Through.IsZero() {
		return acc, latest, false, nil
	}

	// buckets before Through, plus the entries of Through's own bucket that
	// FoldFrom skipped as already folded
	behind, err := s.events.CountBefore(ctx, locationID, latest.Through.At)
	if err != nil {
		return nil, nil, false, err
	}
	if uint64(behind)+uint64(acc.Skipped()) == latest.Folded {
		return acc, latest, false, nil
	}

	acc, err = s.Fold(ctx, locationID)
	if err != nil {
		return nil, nil, false, err
	}
	return acc, latest, true, nil
}

// CurrentState is the snapshot plus every event appended after it.
func (s *ReplayService) CurrentState(ctx context.Context, locationID string) (models.DeviceState, error) {
	acc, _, _, err := s.Current(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return acc.State(), nil
}

// FoldLocations folds several locations concurrently. Each location is an
// independent unit, so the first failure cancels the rest.
func (s *ReplayService) FoldLocations(ctx context.Context, locationIDs []string) (map[string]models.DeviceState, error) {
	var mu sync.Mutex
	out := make(map[string]models.DeviceState, len(locationIDs))

	g, gctx := errgroup.WithContext(ctx)
	for _, locationID := range locationIDs {
		locationID := locationID
		g.Go(func() error {
			state, err := s.CurrentState(gctx, locationID)
			if err != nil {
				return err
			}
			mu.Lock()
			out[locationID] = state
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
