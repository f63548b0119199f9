package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"staykeeper/internal/app/middleware"
)

type IdempotencyStore struct {
	pool *pgxpool.Pool
	TTL  time.Duration
}

func NewIdempotencyStore(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{pool: pool, TTL: ttl}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	rec := middleware.IdempotencyRecord{Key: key}
	err := s.pool.QueryRow(ctx, `SELECT payload, occurred_at FROM idempotency_keys WHERE key=$1 AND created_at > $2`,
		key, time.Now().UTC().Add(-s.TTL)).Scan(&rec.Payload, &rec.OccurredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, payload, occurred_at, created_at) VALUES ($1,$2,$3,now())
		ON CONFLICT (key) DO UPDATE SET payload=EXCLUDED.payload, occurred_at=EXCLUDED.occurred_at, created_at=now()`,
		rec.Key, rec.Payload, rec.OccurredAt)
	return err
}

// Purge drops rows older than the TTL.
func (s *IdempotencyStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at <= $1`, time.Now().UTC().Add(-s.TTL))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
