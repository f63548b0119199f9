package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appoutbox "staykeeper/internal/app/outbox"
	infraoutbox "staykeeper/internal/infra/outbox"
)

// OutboxStore is the relational twin of the Mongo outbox collection.
type OutboxStore struct {
	pool  *pgxpool.Pool
	Lease time.Duration
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool, Lease: time.Minute}
}

func (s *OutboxStore) Add(ctx context.Context, rec appoutbox.EventRecord) error {
	headers := rec.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := conn(ctx, s.pool).Exec(ctx, `INSERT INTO outbox (id, name, aggregate, payload, headers, occurred_at, state, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())`,
		rec.ID, rec.Name, rec.Aggregate, rec.Payload, headers, rec.OccurredAt, infraoutbox.StateNew)
	return err
}

// Flush is a no-op; the worker drains the table.
func (s *OutboxStore) Flush(context.Context) error {
	return nil
}

// Claim locks the oldest due row with SKIP LOCKED so several workers can
// drain the table side by side.
func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.Record, error) {
	lease := s.Lease
	if lease <= 0 {
		lease = time.Minute
	}
	row := s.pool.QueryRow(ctx, `UPDATE outbox SET state=$1, claimed_by=$2, claimed_at=now()
		WHERE id = (
			SELECT id FROM outbox
			WHERE (state IN ($3,$4) AND next_attempt_at <= now())
			   OR (state=$1 AND claimed_at <= now() - $5::interval)
			ORDER BY next_attempt_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, name, aggregate, payload, headers, occurred_at, attempts`,
		infraoutbox.StateClaimed, workerID, infraoutbox.StateNew, infraoutbox.StateFailed, lease)
	var rec infraoutbox.Record
	err := row.Scan(&rec.ID, &rec.Name, &rec.Aggregate, &rec.Payload, &rec.Headers, &rec.OccurredAt, &rec.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET state=$2, sent_at=now() WHERE id=$1`, id, infraoutbox.StateSent)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET state=$2, next_attempt_at=$3, last_error=$4, attempts=attempts+1 WHERE id=$1`,
		id, infraoutbox.StateFailed, next, errMsg)
	return err
}

var (
	_ appoutbox.Outbox  = (*OutboxStore)(nil)
	_ infraoutbox.Queue = (*OutboxStore)(nil)
)
