package poller

import (
	"fmt"
	"time"
)

// Config is everything a Poller needs, passed explicitly at construction.
// There is no process-wide state.
type Config struct {
	// Brokers is the bootstrap server list, comma separated.
	Brokers string
	// ConsumerGroupID names this consumer for broker bookkeeping and for
	// the offsets repository.
	ConsumerGroupID string

	// TargetDomain is the only domain whose events are kept.
	TargetDomain string
	// AllowedNamespaces restricts events by namespace. Empty means all
	// namespaces pass.
	AllowedNamespaces []int

	// MaxBatchSize caps the number of changes collected per poll cycle.
	MaxBatchSize int
	// PollTimeout bounds how long one poll cycle waits for records.
	PollTimeout time.Duration

	// StartTime is where consumption begins for partitions with no stored
	// offset, via a timestamp seek.
	StartTime time.Time
	// ClusterNames lists the cluster prefixes to subscribe across. Empty
	// means a single unprefixed cluster.
	ClusterNames []string
}

func (c Config) validate() error {
	if c.Brokers == "" {
		return fmt.Errorf("poller: no brokers configured")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("poller: no consumer group id configured")
	}
	if c.TargetDomain == "" {
		return fmt.Errorf("poller: no target domain configured")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("poller: max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poller: poll timeout must be positive, got %s", c.PollTimeout)
	}
	if c.StartTime.IsZero() {
		return fmt.Errorf("poller: no start time configured")
	}
	return nil
}

func (c Config) namespaceAllowed(ns int) bool {
	if len(c.AllowedNamespaces) == 0 {
		return true
	}
	for _, allowed := range c.AllowedNamespaces {
		if ns == allowed {
			return true
		}
	}
	return false
}
