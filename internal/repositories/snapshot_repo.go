package repositories

import (
	"context"
	"fmt"

	"github.com/prudhvinik1/meshlog/internal/codec"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisSnapshotRepository appends encoded snapshots to a sorted set scored by
// creation time. The member with the highest score is the latest snapshot.
type RedisSnapshotRepository struct {
	client *redis.Client
	codec  codec.Codec
}

func NewRedisSnapshotRepository(client *redis.Client, c codec.Codec) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{client: client, codec: c}
}

func (r *RedisSnapshotRepository) Save(ctx context.Context, snapshot models.Snapshot) error {
	body, err := r.codec.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	err = r.client.ZAdd(ctx, snapshotKey(snapshot.LocationID), redis.Z{
		Score:  score(snapshot.TakenAt),
		Member: body,
	}).Err()
	if err != nil {
		return unavailable("write snapshot", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) Latest(ctx context.Context, locationID string) (*models.Snapshot, error) {
	latest, err := r.client.ZRange(ctx, snapshotKey(locationID), -1, -1).Result()
	if err != nil {
		return nil, unavailable("read snapshot", err)
	}
	if len(latest) == 0 {
		return nil, ErrNotFound
	}

	snapshot, err := r.codec.DecodeSnapshot([]byte(latest[0]))
	if err != nil {
		return nil, fmt.Errorf("latest snapshot of location %s: %w", locationID, err)
	}
	return &snapshot, nil
}
