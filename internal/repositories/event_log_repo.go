package repositories

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/prudhvinik1/meshlog/internal/codec"
	"github.com/prudhvinik1/meshlog/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPageSize    = 1000
	DefaultReadRetries = 3
	DefaultReadBackoff = 5 * time.Millisecond

	zscanCount = 1000
)

// RedisEventLogRepository keeps each location's log in three keys:
// a hash of encoded bodies, a sorted set indexing compound keys by
// timestamp, and a counter handing out sequence ids.
type RedisEventLogRepository struct {
	client      *redis.Client
	codec       codec.Codec
	readRetries int
	readBackoff time.Duration
}

type EventLogOption func(*RedisEventLogRepository)

// WithReadRetries sets how often a reader re-fetches bodies whose index
// entry is already visible, and how long it waits between attempts.
func WithReadRetries(retries int, backoff time.Duration) EventLogOption {
	return func(r *RedisEventLogRepository) {
		r.readRetries = retries
		r.readBackoff = backoff
	}
}

func NewRedisEventLogRepository(client *redis.Client, c codec.Codec, opts ...EventLogOption) *RedisEventLogRepository {
	r := &RedisEventLogRepository{
		client:      client,
		codec:       c,
		readRetries: DefaultReadRetries,
		readBackoff: DefaultReadBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisEventLogRepository) NextSequence(ctx context.Context, locationID string) (uint64, error) {
	n, err := r.client.Incr(ctx, changeIDKey(locationID)).Result()
	if err != nil {
		return 0, unavailable("allocate sequence id", err)
	}
	return uint64(n), nil
}

// Append writes the body first and the index entry second. Readers only
// reach bodies through the index, so a failure in between leaves nothing
// visible and is reported as a *PartialAppendError.
func (r *RedisEventLogRepository) Append(ctx context.Context, event models.ChangeEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	body, err := r.codec.EncodeEvent(event)
	if err != nil {
		return "", err
	}

	key := event.Key()

	// HSETNX keeps stored events immutable. Re-appending the same event after
	// a partial failure only reissues the index write.
	written, err := r.client.HSetNX(ctx, changesKey(event.LocationID), key, body).Result()
	if err != nil {
		return "", unavailable("write event body", err)
	}
	if !written {
		if err := r.checkSameEvent(ctx, event.LocationID, key, body); err != nil {
			return "", err
		}
	}

	if err := r.Reindex(ctx, event); err != nil {
		return key, &PartialAppendError{LocationID: event.LocationID, Key: key, Err: err}
	}
	return key, nil
}

// checkSameEvent compares the stored body at key with body after decoding
// both, since encodings of equal events may differ byte for byte.
func (r *RedisEventLogRepository) checkSameEvent(ctx context.Context, locationID, key string, body []byte) error {
	stored, err := r.client.HGet(ctx, changesKey(locationID), key).Bytes()
	if err != nil {
		return unavailable("read event body", err)
	}
	if bytes.Equal(stored, body) {
		return nil
	}

	have, err := r.codec.DecodeEvent(stored)
	if err != nil {
		return fmt.Errorf("event %s in location %s: %w", key, locationID, err)
	}
	want, err := r.codec.DecodeEvent(body)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(have, want) {
		return fmt.Errorf("%w: %s in location %s", ErrEventConflict, key, locationID)
	}
	return nil
}

// Reindex inserts the event's compound key into the time index.
func (r *RedisEventLogRepository) Reindex(ctx context.Context, event models.ChangeEvent) error {
	err := r.client.ZAdd(ctx, indexKey(event.LocationID), redis.Z{
		Score:  score(event.Timestamp),
		Member: event.Key(),
	}).Err()
	if err != nil {
		return unavailable("write event index", err)
	}
	return nil
}

func (r *RedisEventLogRepository) ScanByTime(locationID string, opts ScanOptions) EventCursor {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &redisEventCursor{repo: r, locationID: locationID, opts: opts}
}

// Range returns the window [offset, offset+limit) of the index, oldest
// first or newest first. Events inside the window are ordered by position.
func (r *RedisEventLogRepository) Range(ctx context.Context, locationID string, offset, limit int64, descending bool) ([]models.ChangeEvent, error) {
	if limit <= 0 {
		return []models.ChangeEvent{}, nil
	}

	var keys []string
	var err error
	if descending {
		keys, err = r.client.ZRevRange(ctx, indexKey(locationID), offset, offset+limit-1).Result()
	} else {
		keys, err = r.client.ZRange(ctx, indexKey(locationID), offset, offset+limit-1).Result()
	}
	if err != nil {
		return nil, unavailable("read event index", err)
	}

	events, err := r.GetEvents(ctx, locationID, keys)
	if err != nil {
		return nil, err
	}
	sortEvents(events, descending)
	return events, nil
}

// ScanByDevice walks the time index with ZSCAN MATCH device:<id>:seq:* and
// returns the device's keys ordered by timestamp, then sequence id.
func (r *RedisEventLogRepository) ScanByDevice(ctx context.Context, locationID string, deviceID int64) ([]string, error) {
	type entry struct {
		key   string
		score float64
		seq   uint64
	}

	seen := make(map[string]struct{})
	var entries []entry
	var cursor uint64

	for {
		members, next, err := r.client.ZScan(ctx, indexKey(locationID), cursor, models.DeviceKeyPattern(deviceID), zscanCount).Result()
		if err != nil {
			return nil, unavailable("scan device index", err)
		}

		// ZSCAN replies alternate member and score
		for i := 0; i+1 < len(members); i += 2 {
			key := members[i]
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			s, err := strconv.ParseFloat(members[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed score for %s: %w", key, err)
			}
			_, seq, err := models.ParseEventKey(key)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{key: key, score: s, seq: seq})
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].seq < entries[j].seq
	})

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

// Get batch-fetches raw bodies. Missing bodies come back as nil.
func (r *RedisEventLogRepository) Get(ctx context.Context, locationID string, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := r.client.HMGet(ctx, changesKey(locationID), keys...).Result()
	if err != nil {
		return nil, unavailable("read event bodies", err)
	}

	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// GetEvents fetches and decodes bodies in key order. Bodies that are not
// visible yet are re-fetched before giving up with ErrBodyNotVisible.
func (r *RedisEventLogRepository) GetEvents(ctx context.Context, locationID string, keys []string) ([]models.ChangeEvent, error) {
	bodies, err := r.Get(ctx, locationID, keys)
	if err != nil {
		return nil, err
	}

	pending := missingBodies(bodies)
	for attempt := 0; len(pending) > 0 && attempt < r.readRetries; attempt++ {
		if err := sleep(ctx, r.readBackoff); err != nil {
			return nil, err
		}

		retryKeys := make([]string, len(pending))
		for i, idx := range pending {
			retryKeys[i] = keys[idx]
		}
		fetched, err := r.Get(ctx, locationID, retryKeys)
		if err != nil {
			return nil, err
		}
		for i, idx := range pending {
			bodies[idx] = fetched[i]
		}
		pending = missingBodies(bodies)
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: %s in location %s", ErrBodyNotVisible, keys[pending[0]], locationID)
	}

	events := make([]models.ChangeEvent, len(bodies))
	for i, body := range bodies {
		e, err := r.codec.DecodeEvent(body)
		if err != nil {
			return nil, fmt.Errorf("event %s in location %s: %w", keys[i], locationID, err)
		}
		events[i] = e
	}
	return events, nil
}

func (r *RedisEventLogRepository) Count(ctx context.Context, locationID string) (int64, error) {
	n, err := r.client.ZCard(ctx, indexKey(locationID)).Result()
	if err != nil {
		return 0, unavailable("count events", err)
	}
	return n, nil
}

// CountBefore counts index entries in timestamp buckets strictly before at.
func (r *RedisEventLogRepository) CountBefore(ctx context.Context, locationID string, at time.Time) (int64, error) {
	n, err := r.client.ZCount(ctx, indexKey(locationID), "-inf", "("+formatScore(score(at))).Result()
	if err != nil {
		return 0, unavailable("count events", err)
	}
	return n, nil
}

// Reset drops every key of a location: log, counters and snapshots.
func (r *RedisEventLogRepository) Reset(ctx context.Context, locationID string) error {
	err := r.client.Del(ctx,
		changesKey(locationID),
		indexKey(locationID),
		changeIDKey(locationID),
		deviceIDKey(locationID),
		snapshotKey(locationID),
	).Err()
	if err != nil {
		return unavailable("reset location", err)
	}
	return nil
}

// redisEventCursor pages with score bounds instead of offsets, so appends
// landing behind the cursor never shift later pages. A full page is widened
// to include every member sharing its last score, which keeps each
// timestamp bucket inside a single page.
type redisEventCursor struct {
	repo       *RedisEventLogRepository
	locationID string
	opts       ScanOptions
	bound      string
	done       bool
}

func (c *redisEventCursor) Reset() {
	c.bound = ""
	c.done = false
}

func (c *redisEventCursor) Next(ctx context.Context) ([]models.ChangeEvent, error) {
	if c.done {
		return nil, io.EOF
	}

	key := indexKey(c.locationID)

	lo, hi := openBound(c.opts.Start, "-inf"), openBound(c.opts.End, "+inf")
	if c.bound != "" {
		if c.opts.Descending {
			hi = c.bound
		} else {
			lo = c.bound
		}
	}

	page, err := c.rangeByScore(ctx, key, lo, hi, int64(c.opts.PageSize))
	if err != nil {
		return nil, unavailable("read event index", err)
	}
	if len(page) == 0 {
		c.done = true
		return nil, io.EOF
	}

	if len(page) < c.opts.PageSize {
		c.done = true
	} else {
		last := page[len(page)-1].Score
		bucket, err := c.rangeByScore(ctx, key, formatScore(last), formatScore(last), 0)
		if err != nil {
			return nil, unavailable("read event index", err)
		}
		trimmed := page[:0]
		for _, z := range page {
			if z.Score != last {
				trimmed = append(trimmed, z)
			}
		}
		page = append(trimmed, bucket...)
		c.bound = "(" + formatScore(last)
	}

	keys := make([]string, len(page))
	for i, z := range page {
		keys[i] = z.Member.(string)
	}

	events, err := c.repo.GetEvents(ctx, c.locationID, keys)
	if err != nil {
		return nil, err
	}
	sortEvents(events, c.opts.Descending)
	return events, nil
}

func (c *redisEventCursor) rangeByScore(ctx context.Context, key, lo, hi string, count int64) ([]redis.Z, error) {
	by := &redis.ZRangeBy{Min: lo, Max: hi, Count: count}
	if c.opts.Descending {
		return c.repo.client.ZRevRangeByScoreWithScores(ctx, key, by).Result()
	}
	return c.repo.client.ZRangeByScoreWithScores(ctx, key, by).Result()
}

func openBound(t time.Time, unbounded string) string {
	if t.IsZero() {
		return unbounded
	}
	return formatScore(score(t))
}

func sortEvents(events []models.ChangeEvent, descending bool) {
	sort.SliceStable(events, func(i, j int) bool {
		if descending {
			return events[j].Position().Before(events[i].Position())
		}
		return events[i].Position().Before(events[j].Position())
	})
}

func missingBodies(bodies [][]byte) []int {
	var idx []int
	for i, b := range bodies {
		if b == nil {
			idx = append(idx, i)
		}
	}
	return idx
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
