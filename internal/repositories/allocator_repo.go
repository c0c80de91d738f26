package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// DefaultDeviceIDSeed is the value device ids count up from in a fresh location.
const DefaultDeviceIDSeed int64 = 32800

// RedisDeviceIDAllocator hands out device ids from a per-location counter.
// Ids are never reused, even after the device is deleted.
type RedisDeviceIDAllocator struct {
	client *redis.Client
	seed   int64
}

func NewRedisDeviceIDAllocator(client *redis.Client, seed int64) *RedisDeviceIDAllocator {
	return &RedisDeviceIDAllocator{client: client, seed: seed}
}

func (a *RedisDeviceIDAllocator) Next(ctx context.Context, locationID string) (int64, error) {
	key := deviceIDKey(locationID)

	var incr *redis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, a.seed, 0)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, unavailable("allocate device id", err)
	}
	return incr.Val(), nil
}
