package poller

import (
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// RetryableError marks a transient failure: broker unavailability, a network
// hiccup talking to the offsets store, a failed timestamp seek. The poller
// performs no internal retry; callers apply backoff around the whole
// poll-or-resolve call and try again.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %s", e.Cause)
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err (or anything it wraps) is a transient
// condition worth retrying.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

func retryable(err error) error {
	return &RetryableError{Cause: err}
}

// classify maps a kafka client error onto the retryable/fatal taxonomy.
// Authentication and other fatal client errors pass through unchanged;
// everything the client itself flags as retriable, plus timeouts and
// transport-level failures, comes back wrapped as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ke kafka.Error
	if !errors.As(err, &ke) {
		return err
	}
	switch ke.Code() {
	case kafka.ErrAuthentication, kafka.ErrSaslAuthenticationFailed, kafka.ErrTopicAuthorizationFailed, kafka.ErrGroupAuthorizationFailed:
		return err
	}
	if ke.IsFatal() {
		return err
	}
	if ke.IsRetriable() {
		return retryable(err)
	}
	switch ke.Code() {
	case kafka.ErrTimedOut, kafka.ErrTransport, kafka.ErrAllBrokersDown, kafka.ErrBrokerNotAvailable, kafka.ErrLeaderNotAvailable, kafka.ErrNetworkException, kafka.ErrNotCoordinator:
		return retryable(err)
	}
	return err
}
