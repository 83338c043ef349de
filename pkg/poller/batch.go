package poller

import (
	"github.com/entitysync/entitysync/pkg/change"
	"github.com/entitysync/entitysync/pkg/events"
)

// normalize converts a decoded event into the canonical change, applying the
// domain and namespace filters. A filtered event yields ok=false; that is not
// an error.
func (p *Poller) normalize(ev events.ChangeEvent) (change.Change, bool) {
	if ev.Domain() != p.cfg.TargetDomain {
		return change.Change{}, false
	}
	if !p.cfg.namespaceAllowed(ev.Namespace()) {
		return change.Change{}, false
	}
	return change.Change{
		EntityID:  ev.EntityID(),
		Revision:  ev.Revision(),
		Timestamp: ev.Timestamp(),
	}, true
}

// aggregator collapses the records of one poll cycle into a batch: changes in
// arrival order, the highest consumed offset per partition, and one change
// per entity.
//
// Dedup policy: first-wins. When several records in one cycle touch the same
// entity, the first occurrence is kept and the rest are dropped. Bursty
// re-edits then cost one re-index instead of many; a consumer that needs the
// newest state of an entity re-queries it downstream anyway, so dropping the
// later intermediates loses nothing the contract promises.
type aggregator struct {
	changes  []change.Change
	seen     map[string]struct{}
	position change.StreamPosition
}

func newAggregator(base change.StreamPosition) *aggregator {
	return &aggregator{
		seen:     make(map[string]struct{}),
		position: base.Clone(),
	}
}

// add records one normalized change and the offset of the record that
// produced it. It reports whether the change was kept.
func (a *aggregator) add(c change.Change, tp change.TopicPartition, next change.Offset) bool {
	a.position.Advance(tp, next)
	if _, dup := a.seen[c.EntityID]; dup {
		recordsDeduplicated.Inc()
		return false
	}
	a.seen[c.EntityID] = struct{}{}
	a.changes = append(a.changes, c)
	return true
}

// skip advances the position past a record that produced no change (decode
// failure or filtered event). The offset is still consumed.
func (a *aggregator) skip(tp change.TopicPartition, next change.Offset) {
	a.position.Advance(tp, next)
}

func (a *aggregator) full(max int) bool {
	return len(a.changes) >= max
}

func (a *aggregator) batch() *change.Batch {
	return &change.Batch{Changes: a.changes, Position: a.position}
}
