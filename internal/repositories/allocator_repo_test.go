package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceIDAllocator_SeededPerLocation(t *testing.T) {
	_, client := getTestRedis(t)
	alloc := NewRedisDeviceIDAllocator(client, DefaultDeviceIDSeed)
	ctx := context.Background()

	first, err := alloc.Next(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(32801), first)

	second, err := alloc.Next(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(32802), second)

	// another location starts from its own seed
	other, err := alloc.Next(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(32801), other)
}

func TestDeviceIDAllocator_ConcurrentIDsAreUnique(t *testing.T) {
	_, client := getTestRedis(t)
	alloc := NewRedisDeviceIDAllocator(client, 0)
	ctx := context.Background()

	const n = 40
	ids := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := alloc.Next(ctx, "1")
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
