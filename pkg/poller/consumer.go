package poller

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Consumer is the slice of the kafka client the poller drives. The concrete
// *kafka.Consumer satisfies it; tests substitute a mock. The handle is not
// safe for concurrent use, so exactly one goroutine owns all calls except
// Close.
type Consumer interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	OffsetsForTimes(times []kafka.TopicPartition, timeoutMs int) ([]kafka.TopicPartition, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (int64, int64, error)
	Assign(partitions []kafka.TopicPartition) error
	Unassign() error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// NewConsumer builds the production kafka consumer for cfg. Offset commits
// stay disabled on the broker side: position tracking is explicit through the
// offsets repository, never hidden consumer-group state.
func NewConsumer(cfg Config) (Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.ConsumerGroupID,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, classify(err)
	}
	return consumer, nil
}
