package repositories

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// getTestRedis starts an in-process Redis and a client connected to it
func getTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

var baseTime = time.Date(2020, 6, 27, 8, 54, 6, 0, time.UTC)

func testEvent(t *testing.T, kind models.Kind, locationID string, deviceID int64, seq uint64, at time.Time, attrs map[string]any) models.ChangeEvent {
	t.Helper()

	var e models.ChangeEvent
	var err error
	switch kind {
	case models.KindCreate:
		e, err = models.NewCreateEvent(locationID, deviceID, seq, uuid.NewString(), at, attrs)
	case models.KindUpdate:
		e, err = models.NewUpdateEvent(locationID, deviceID, seq, uuid.NewString(), at, attrs)
	case models.KindDelete:
		e, err = models.NewDeleteEvent(locationID, deviceID, seq, uuid.NewString(), at)
	}
	require.NoError(t, err)
	return e
}
