package amqp

import (
	"sync/atomic"
	"time"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

// breaker stops publishing after maxFailures consecutive failures and lets
// one attempt through once openTimeout has passed since the last failure.
// All fields are atomics so publishers can check it without the client lock.
type breaker struct {
	state       atomic.Int32
	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanos
	now         func() time.Time
}

func newBreaker() *breaker {
	return &breaker{now: time.Now}
}

// open reports whether calls should be rejected. An open breaker whose
// timeout has elapsed moves to half-open and admits the caller.
func (b *breaker) open() bool {
	if b.state.Load() != StateOpen {
		return false
	}
	last := time.Unix(0, b.lastFailure.Load())
	if b.now().Sub(last) > openTimeout {
		b.state.CompareAndSwap(StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (b *breaker) success() {
	b.failures.Store(0)
	b.state.Store(StateClosed)
}

func (b *breaker) failure() {
	b.lastFailure.Store(b.now().UnixNano())
	n := b.failures.Add(1)
	if n >= maxFailures || b.state.Load() == StateHalfOpen {
		b.state.Store(StateOpen)
	}
}
