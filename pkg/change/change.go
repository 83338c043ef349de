// Package change holds the canonical value types handed between the poller,
// its callers and the offsets store. Everything here is a plain value; the
// poller owns the only mutable copies.
package change

import (
	"fmt"
	"time"
)

// NoRevision marks change kinds that carry no applicable revision number
// (page deletes and property changes).
const NoRevision int64 = -1

// Change is one normalized entity change, the unit handed to re-indexing.
type Change struct {
	// EntityID is the stable external identifier, e.g. "Q123". Never empty.
	EntityID  string
	Revision  int64
	Timestamp time.Time
}

func (c Change) String() string {
	return fmt.Sprintf("%s@%d(%s)", c.EntityID, c.Revision, c.Timestamp.Format(time.RFC3339Nano))
}

// TopicPartition identifies one partition of one concrete topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// Offset is a position within one partition, optionally paired with the event
// time observed at that position. Zero EventTime means "not known".
type Offset struct {
	Offset    int64
	EventTime time.Time
}

// StreamPosition maps every consumed (topic,partition) to the offset of the
// last record consumed from it; resuming starts at the stored offset plus one.
// Offsets are monotonically non-decreasing per key across successive
// snapshots taken by one poller instance.
type StreamPosition map[TopicPartition]Offset

// Clone returns an independent copy. The poller hands clones to callers so a
// later poll cycle cannot mutate a snapshot already passed to the offsets
// store.
func (p StreamPosition) Clone() StreamPosition {
	out := make(StreamPosition, len(p))
	for tp, off := range p {
		out[tp] = off
	}
	return out
}

// Advance records off as the position for tp if it is ahead of what is
// already there.
func (p StreamPosition) Advance(tp TopicPartition, off Offset) {
	if cur, ok := p[tp]; ok && cur.Offset >= off.Offset {
		return
	}
	p[tp] = off
}

// Batch is the output of one poll cycle: the normalized changes in arrival
// order and the position reached after producing them. It is a value object,
// never persisted; callers act on the changes and then commit Position.
type Batch struct {
	Changes  []Change
	Position StreamPosition
}
