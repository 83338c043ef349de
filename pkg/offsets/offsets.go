// Package offsets persists stream-consumption progress for a named consumer.
//
// The repository is the durable half of the at-least-once contract: the
// poller hands batches to the caller, the caller acts on them, and only then
// commits the reached position here. A failed Store never advances anything;
// the caller retries with the same position and accepts redelivery after a
// restart.
package offsets

import (
	"context"
	"time"

	"github.com/entitysync/entitysync/pkg/change"
)

// Repository stores and retrieves, per (topic,partition), the last committed
// offset for one consumer. Implementations must be last-write-wins per key
// and must never swallow errors.
type Repository interface {
	// Store durably records every entry in pos, overwriting prior values
	// for the same keys.
	Store(ctx context.Context, pos change.StreamPosition) error

	// Load returns the stored position. Keys with no stored entry are
	// simply absent; the poller falls back to a timestamp seek for them.
	//
	// Entries whose recorded event time is known and earlier than asOf are
	// treated as stale and omitted: an operator asking to start at a later
	// point must win over a resume point from before it. Entries with no
	// recorded event time always qualify.
	Load(ctx context.Context, asOf time.Time) (change.StreamPosition, error)
}

// stale reports whether a stored entry must be ignored for the given start.
func stale(off change.Offset, asOf time.Time) bool {
	return !off.EventTime.IsZero() && off.EventTime.Before(asOf)
}
