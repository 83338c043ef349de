// Package poller drives consumption of the entity-change stream: it resolves
// where to resume, pulls raw records, runs them through decode, filter and
// dedup, and hands the caller one batch per call together with the position
// reached.
//
// Committing that position is deliberately the caller's job: act on the
// batch first, then pass CurrentOffsets to the offsets repository. A crash in
// between redelivers the batch after restart, never loses it (at-least-once).
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/entitysync/entitysync/pkg/change"
	"github.com/entitysync/entitysync/pkg/cluster"
	"github.com/entitysync/entitysync/pkg/events"
	"github.com/entitysync/entitysync/pkg/offsets"
)

// ErrClosed is returned by poll calls issued after Close.
var ErrClosed = errors.New("poller: closed")

const (
	metadataTimeoutMs = 10000
	seekTimeoutMs     = 10000
)

// Poller owns one stream-client connection. All methods except Close must be
// called from a single goroutine; Close may be called from anywhere to
// request shutdown and is idempotent.
type Poller struct {
	cfg      Config
	consumer Consumer
	repo     offsets.Repository
	router   *cluster.Router

	// mu serializes consumer access between the poll goroutine and Close.
	mu         sync.Mutex
	closing    atomic.Bool
	closed     bool
	subscribed bool
	position   change.StreamPosition
}

// New builds a poller over an already-constructed consumer. Use NewConsumer
// for the production client; tests pass a mock.
func New(consumer Consumer, cfg Config, repo offsets.Repository) (*Poller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if consumer == nil {
		return nil, fmt.Errorf("poller: nil consumer")
	}
	if repo == nil {
		return nil, fmt.Errorf("poller: nil offsets repository")
	}
	return &Poller{
		cfg:      cfg,
		consumer: consumer,
		repo:     repo,
		router:   cluster.NewRouter(cfg.ClusterNames),
		position: make(change.StreamPosition),
	}, nil
}

// FirstBatch resolves start offsets, assigns the subscription and returns the
// first poll cycle's batch.
func (p *Poller) FirstBatch(ctx context.Context) (*change.Batch, error) {
	return p.NextBatch(ctx)
}

// NextBatch returns one poll cycle's batch. On the first call it performs
// offset resolution and assignment; later calls go straight to polling.
func (p *Poller) NextBatch(ctx context.Context) (*change.Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.closing.Load() {
		return nil, ErrClosed
	}
	if !p.subscribed {
		if err := p.subscribe(ctx); err != nil {
			return nil, err
		}
	}
	return p.fetch(ctx)
}

// CurrentOffsets returns the position reached by the most recently emitted
// batch (or the resolved start position before the first batch). The caller
// hands it to the offsets repository after acting on the batch.
func (p *Poller) CurrentOffsets() change.StreamPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position.Clone()
}

// Close releases the stream-client connection. It is idempotent and safe to
// call concurrently with an in-flight poll: the poll observes the close
// request between reads and returns promptly.
func (p *Poller) Close() error {
	p.closing.Store(true)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.subscribed {
		if err := p.consumer.Unassign(); err != nil {
			zap.S().Warnf("Failed to unassign partitions on close: %s", err)
		}
	}
	if err := p.consumer.Close(); err != nil {
		return classify(err)
	}
	return nil
}

// subscribe is the CREATED → SUBSCRIBED transition: enumerate partitions,
// resolve a start offset for each, assign. Caller holds mu.
func (p *Poller) subscribe(ctx context.Context) error {
	parts, err := p.partitions()
	if err != nil {
		return err
	}

	stored, err := p.repo.Load(ctx, p.cfg.StartTime)
	if err != nil {
		err = fmt.Errorf("loading stored offsets: %w", err)
		// Only connection-level store failures are worth a retry; a
		// query that structurally cannot succeed surfaces as-is.
		if offsets.IsTransient(err) {
			return retryable(err)
		}
		return err
	}

	assignment, err := p.resolve(parts, stored)
	if err != nil {
		return err
	}
	if err := p.consumer.Assign(assignment); err != nil {
		return classify(fmt.Errorf("assigning partitions: %w", err))
	}

	// Positions track the last consumed offset; before anything is
	// consumed that is one before the assigned start, so a stored
	// position always resumes at stored+1.
	for _, tp := range assignment {
		p.position[change.TopicPartition{Topic: *tp.Topic, Partition: tp.Partition}] = change.Offset{Offset: int64(tp.Offset) - 1}
	}
	p.subscribed = true
	zap.S().Infof("Subscribed to %d partitions across %d topics (group %s)",
		len(assignment), len(parts), p.cfg.ConsumerGroupID)
	return nil
}

// partitions expands the canonical topic set through the cluster router and
// enumerates every partition of every concrete topic.
func (p *Poller) partitions() (map[string][]int32, error) {
	out := make(map[string][]int32)
	for _, topic := range p.router.Topics(events.CanonicalTopics()) {
		topic := topic
		md, err := p.consumer.GetMetadata(&topic, false, metadataTimeoutMs)
		if err != nil {
			return nil, classify(fmt.Errorf("fetching metadata for %s: %w", topic, err))
		}
		tmd, ok := md.Topics[topic]
		if !ok {
			return nil, fmt.Errorf("poller: topic %s missing from metadata", topic)
		}
		if tmd.Error.Code() != kafka.ErrNoError {
			return nil, classify(fmt.Errorf("fetching metadata for %s: %w", topic, tmd.Error))
		}
		ids := make([]int32, 0, len(tmd.Partitions))
		for _, pm := range tmd.Partitions {
			ids = append(ids, pm.ID)
		}
		out[topic] = ids
	}
	return out, nil
}

// resolve computes the starting offset per partition: a stored offset resumes
// one past it; everything else seeks by the configured start time, falling
// back to the earliest available offset for partitions with no record at or
// after that time.
func (p *Poller) resolve(parts map[string][]int32, stored change.StreamPosition) ([]kafka.TopicPartition, error) {
	var assignment, seek []kafka.TopicPartition
	for topic, ids := range parts {
		topic := topic
		for _, id := range ids {
			if off, ok := stored[change.TopicPartition{Topic: topic, Partition: id}]; ok {
				assignment = append(assignment, kafka.TopicPartition{
					Topic:     &topic,
					Partition: id,
					Offset:    kafka.Offset(off.Offset + 1),
				})
				continue
			}
			seek = append(seek, kafka.TopicPartition{
				Topic:     &topic,
				Partition: id,
				Offset:    kafka.Offset(p.cfg.StartTime.UnixMilli()),
			})
		}
	}
	if len(seek) == 0 {
		return assignment, nil
	}

	found, err := p.consumer.OffsetsForTimes(seek, seekTimeoutMs)
	if err != nil {
		return nil, classify(fmt.Errorf("seeking offsets by time: %w", err))
	}
	for _, tp := range found {
		if tp.Error != nil {
			return nil, classify(fmt.Errorf("seeking offsets by time for %s[%d]: %w", *tp.Topic, tp.Partition, tp.Error))
		}
		if tp.Offset < 0 {
			// No record at or after the start time.
			low, _, err := p.consumer.QueryWatermarkOffsets(*tp.Topic, tp.Partition, seekTimeoutMs)
			if err != nil {
				return nil, classify(fmt.Errorf("querying watermarks for %s[%d]: %w", *tp.Topic, tp.Partition, err))
			}
			tp.Offset = kafka.Offset(low)
		}
		assignment = append(assignment, tp)
	}
	return assignment, nil
}

// fetch is one poll cycle: pull records until the time budget elapses or the
// batch is full, running each through decode, filter and dedup. Caller holds
// mu.
func (p *Poller) fetch(ctx context.Context) (*change.Batch, error) {
	agg := newAggregator(p.position)
	deadline := time.Now().Add(p.cfg.PollTimeout)

	for {
		if p.closing.Load() || ctx.Err() != nil {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		msg, err := p.consumer.ReadMessage(remaining)
		if err != nil {
			var ke kafka.Error
			if errors.As(err, &ke) && ke.Code() == kafka.ErrTimedOut {
				break
			}
			return nil, classify(fmt.Errorf("polling records: %w", err))
		}
		recordsPolled.Inc()

		tp := change.TopicPartition{Topic: *msg.TopicPartition.Topic, Partition: msg.TopicPartition.Partition}
		consumed := change.Offset{Offset: int64(msg.TopicPartition.Offset)}
		if msg.TimestampType != kafka.TimestampNotAvailable {
			consumed.EventTime = msg.Timestamp
		}

		ev, err := events.Decode(p.router.Canonical(tp.Topic), msg.Value)
		if err != nil {
			zap.S().Warnf("Skipping undecodable record at %s offset %d: %s", tp, msg.TopicPartition.Offset, err)
			decodeFailures.Inc()
			agg.skip(tp, consumed)
			continue
		}

		c, ok := p.normalize(ev)
		if !ok {
			recordsFiltered.Inc()
			agg.skip(tp, consumed)
			continue
		}

		agg.add(c, tp, consumed)
		if agg.full(p.cfg.MaxBatchSize) {
			break
		}
	}

	p.position = agg.position
	batch := agg.batch()
	batchesEmitted.Inc()
	changesEmitted.Add(float64(len(batch.Changes)))
	zap.S().Debugf("Poll cycle produced %d changes across %d partitions", len(batch.Changes), len(batch.Position))
	return batch, nil
}
