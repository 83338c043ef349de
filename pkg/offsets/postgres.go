package offsets

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/entitysync/entitysync/pkg/change"
)

// PostgresRepository keeps offsets in a single table keyed by
// (consumer_id, topic, partition). The backing store may be shared by
// multiple deployments; rows are scoped by consumer id, and writers for the
// same partition key must be avoided by deployment discipline.
type PostgresRepository struct {
	pool       *pgxpool.Pool
	consumerID string
}

const offsetsSchema = `
CREATE TABLE IF NOT EXISTS entitysync_offsets (
	consumer_id TEXT        NOT NULL,
	topic       TEXT        NOT NULL,
	partition   INT         NOT NULL,
	"offset"    BIGINT      NOT NULL,
	event_time  TIMESTAMPTZ NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (consumer_id, topic, partition)
)`

// NewPostgresRepository connects to the given DSN and ensures the offsets
// table exists.
func NewPostgresRepository(ctx context.Context, dsn, consumerID string) (*PostgresRepository, error) {
	if consumerID == "" {
		return nil, fmt.Errorf("offsets: consumer id must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("offsets: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, offsetsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("offsets: ensure schema: %w", err)
	}
	return &PostgresRepository{pool: pool, consumerID: consumerID}, nil
}

func (r *PostgresRepository) Store(ctx context.Context, pos change.StreamPosition) error {
	if len(pos) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("offsets: begin store: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for tp, off := range pos {
		var eventTime *time.Time
		if !off.EventTime.IsZero() {
			t := off.EventTime
			eventTime = &t
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO entitysync_offsets (consumer_id, topic, partition, "offset", event_time, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (consumer_id, topic, partition)
			DO UPDATE SET "offset" = EXCLUDED."offset", event_time = EXCLUDED.event_time, updated_at = now()`,
			r.consumerID, tp.Topic, tp.Partition, off.Offset, eventTime)
		if err != nil {
			return fmt.Errorf("offsets: store %s: %w", tp, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("offsets: commit store: %w", err)
	}
	zap.S().Debugf("Stored offsets for %d partitions (consumer %s)", len(pos), r.consumerID)
	return nil
}

func (r *PostgresRepository) Load(ctx context.Context, asOf time.Time) (change.StreamPosition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT topic, partition, "offset", event_time FROM entitysync_offsets WHERE consumer_id = $1`,
		r.consumerID)
	if err != nil {
		return nil, fmt.Errorf("offsets: load: %w", err)
	}
	defer rows.Close()

	out := make(change.StreamPosition)
	for rows.Next() {
		var (
			tp        change.TopicPartition
			off       change.Offset
			eventTime *time.Time
		)
		if err := rows.Scan(&tp.Topic, &tp.Partition, &off.Offset, &eventTime); err != nil {
			return nil, fmt.Errorf("offsets: scan: %w", err)
		}
		if eventTime != nil {
			off.EventTime = *eventTime
		}
		if stale(off, asOf) {
			continue
		}
		out[tp] = off
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("offsets: load: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
