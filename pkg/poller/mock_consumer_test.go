package poller

import (
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// mockConsumer scripts the kafka client: queued messages are returned in
// order, then ReadMessage times out like an idle broker would.
type mockConsumer struct {
	mu sync.Mutex

	partitions    map[string][]int32 // defaults to a single partition 0
	messages      []*kafka.Message
	seekResults   map[string]kafka.Offset // topic[partition] -> OffsetsForTimes result
	lowWatermarks map[string]int64

	// endlessPayload, when set, makes ReadMessage synthesize a fresh
	// record on every call instead of timing out when the queue drains.
	endlessPayload string
	endlessOffset  int64

	readErr    error
	assigned   []kafka.TopicPartition
	seekCalls  []kafka.TopicPartition
	unassigns  int
	closeCalls int
}

func newMockConsumer() *mockConsumer {
	return &mockConsumer{
		partitions:    make(map[string][]int32),
		seekResults:   make(map[string]kafka.Offset),
		lowWatermarks: make(map[string]int64),
	}
}

func key(topic string, partition int32) string {
	return fmt.Sprintf("%s[%d]", topic, partition)
}

func (m *mockConsumer) enqueue(topic string, offset int64, ts time.Time, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	topicCopy := topic
	m.messages = append(m.messages, &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topicCopy,
			Partition: 0,
			Offset:    kafka.Offset(offset),
		},
		Value:         []byte(payload),
		Timestamp:     ts,
		TimestampType: kafka.TimestampCreateTime,
	})
}

func (m *mockConsumer) GetMetadata(topic *string, _ bool, _ int) (*kafka.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.partitions[*topic]
	if !ok {
		ids = []int32{0}
	}
	pmd := make([]kafka.PartitionMetadata, 0, len(ids))
	for _, id := range ids {
		pmd = append(pmd, kafka.PartitionMetadata{ID: id})
	}
	return &kafka.Metadata{
		Topics: map[string]kafka.TopicMetadata{
			*topic: {Topic: *topic, Partitions: pmd},
		},
	}, nil
}

func (m *mockConsumer) OffsetsForTimes(times []kafka.TopicPartition, _ int) ([]kafka.TopicPartition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]kafka.TopicPartition, 0, len(times))
	for _, tp := range times {
		m.seekCalls = append(m.seekCalls, tp)
		result := tp
		if off, ok := m.seekResults[key(*tp.Topic, tp.Partition)]; ok {
			result.Offset = off
		} else {
			result.Offset = 0
		}
		out = append(out, result)
	}
	return out, nil
}

func (m *mockConsumer) QueryWatermarkOffsets(topic string, partition int32, _ int) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lowWatermarks[key(topic, partition)], 100, nil
}

func (m *mockConsumer) Assign(partitions []kafka.TopicPartition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned = append([]kafka.TopicPartition(nil), partitions...)
	return nil
}

func (m *mockConsumer) Unassign() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unassigns++
	return nil
}

func (m *mockConsumer) ReadMessage(_ time.Duration) (*kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.messages) == 0 {
		if m.endlessPayload != "" {
			topic := "mediawiki.revision-create"
			offset := m.endlessOffset
			m.endlessOffset++
			return &kafka.Message{
				TopicPartition: kafka.TopicPartition{
					Topic:     &topic,
					Partition: 0,
					Offset:    kafka.Offset(offset),
				},
				Value:         []byte(m.endlessPayload),
				Timestamp:     time.Now(),
				TimestampType: kafka.TimestampCreateTime,
			}, nil
		}
		return nil, kafka.NewError(kafka.ErrTimedOut, "Local: Timed out", false)
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, nil
}

func (m *mockConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockConsumer) assignedOffset(topic string, partition int32) (kafka.Offset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tp := range m.assigned {
		if *tp.Topic == topic && tp.Partition == partition {
			return tp.Offset, true
		}
	}
	return 0, false
}
