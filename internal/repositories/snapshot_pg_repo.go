package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/meshlog/internal/codec"
	"github.com/prudhvinik1/meshlog/internal/models"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS location_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    location_id TEXT        NOT NULL,
    taken_at    TIMESTAMPTZ NOT NULL,
    through_at  TIMESTAMPTZ,
    through_seq BIGINT      NOT NULL DEFAULT 0,
    codec       TEXT        NOT NULL,
    device_count INTEGER    NOT NULL,
    body        BYTEA       NOT NULL
);
CREATE INDEX IF NOT EXISTS location_snapshots_latest_idx
    ON location_snapshots (location_id, taken_at DESC, id DESC);`

// PostgresSnapshotRepository archives snapshots as encoded rows. The codec
// name is stored with each row so snapshots written with another codec stay readable.
type PostgresSnapshotRepository struct {
	pool  *pgxpool.Pool
	codec codec.Codec
}

func NewPostgresSnapshotRepository(pool *pgxpool.Pool, c codec.Codec) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{pool: pool, codec: c}
}

// EnsureSchema creates the snapshot table and its index if they are missing.
func (r *PostgresSnapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, snapshotSchema); err != nil {
		return unavailable("create snapshot schema", err)
	}
	return nil
}

func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot models.Snapshot) error {
	body, err := r.codec.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	var throughAt *time.Time
	if !snapshot.Through.At.IsZero() {
		throughAt = &snapshot.Through.At
	}

	query := `INSERT INTO location_snapshots (location_id, taken_at, through_at, through_seq, codec, device_count, body)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.pool.Exec(ctx, query,
		snapshot.LocationID,
		snapshot.TakenAt,
		throughAt,
		int64(snapshot.Through.Seq),
		r.codec.Name(),
		len(snapshot.Devices),
		body,
	)
	if err != nil {
		return unavailable("insert snapshot", err)
	}
	return nil
}

func (r *PostgresSnapshotRepository) Latest(ctx context.Context, locationID string) (*models.Snapshot, error) {
	query := `SELECT codec, body
	          FROM location_snapshots
	          WHERE location_id = $1
	          ORDER BY taken_at DESC, id DESC
	          LIMIT 1`

	var codecName string
	var body []byte
	err := r.pool.QueryRow(ctx, query, locationID).Scan(&codecName, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("read latest snapshot", err)
	}

	dec := r.codec
	if codecName != r.codec.Name() {
		if dec, err = codec.ByName(codecName); err != nil {
			return nil, fmt.Errorf("%w: snapshot of location %s: %w", codec.ErrCorruptRecord, locationID, err)
		}
	}

	snapshot, err := dec.DecodeSnapshot(body)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot of location %s: %w", locationID, err)
	}
	return &snapshot, nil
}
