package internal

import (
	"math/rand"
	"time"
)

const int64Max = 1<<63 - 1

// Retrier tracks consecutive failures of one operation and hands out
// randomized exponential backoff delays for them. Each retry loop owns its
// own instance; it is not safe for concurrent use.
type Retrier struct {
	SlotTime time.Duration
	Maximum  time.Duration

	attempts int64
}

// Backoff records another failed attempt and returns how long to wait before
// the next one. The caller sleeps; the Retrier only does the arithmetic.
func (r *Retrier) Backoff() time.Duration {
	r.attempts++
	return backoffTime(r.attempts, r.SlotTime, r.Maximum)
}

// Attempts returns the number of failures recorded since the last Reset.
func (r *Retrier) Attempts() int64 {
	return r.attempts
}

// Reset clears the failure count after a success.
func (r *Retrier) Reset() {
	r.attempts = 0
}

// backoffTime returns a randomized exponential backoff for the given attempt,
// capped at maximum.
func backoffTime(attempts int64, slotTime time.Duration, maximum time.Duration) (backoff time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			backoff = maximum
		}
	}()

	if slotTime <= 0 || attempts <= 0 {
		return time.Duration(0)
	}
	umax := uint64(uint64(1) << attempts)
	if umax > int64Max || umax == 0 {
		return maximum
	}
	n := rand.Int63n(int64(umax))

	// Prevents overflow
	u64Time := uint64(slotTime.Nanoseconds()) * uint64(n)
	if u64Time > int64Max {
		return maximum
	}

	backoff = time.Duration(n) * slotTime
	if backoff > maximum {
		backoff = maximum
	}
	return backoff
}
