// Package circuit guards calls to a flaky dependency with a circuit breaker.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker trips open after a run of consecutive failures and rejects calls
// for the cooldown. After that it lets one probe through at a time; enough
// consecutive probe successes close it, and any probe failure re-opens it.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time
	onChange         func(name string, from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker (default 5).
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many probe successes close it again (default 2).
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open (default 30s).
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// OnStateChange registers fn to run after every transition. fn is called
// without the breaker lock held.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current position, moving open to half-open if the
// cooldown has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs fn unless the breaker is open, in which case it returns
// ErrOpen without calling fn. countsAsFailure decides which errors from fn
// move the breaker toward open; a nil countsAsFailure counts every error.
func (b *Breaker) Execute(fn func() error, countsAsFailure func(error) bool) error {
	probe, ok := b.acquire()
	if !ok {
		return ErrOpen
	}
	err := fn()
	failed := err != nil
	if failed && countsAsFailure != nil {
		failed = countsAsFailure(err)
	}
	b.release(probe, failed)
	return err
}

// acquire reports whether a call may run and whether it is the half-open probe.
func (b *Breaker) acquire() (probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false, false
		}
		b.state = StateHalfOpen
		b.successes = 0
		fallthrough
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return false, false
		}
		b.probing = true
		probe = true
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return probe, true
}

func (b *Breaker) release(probe, failed bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case probe:
		b.probing = false
		if failed {
			b.trip()
		} else if b.successes++; b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	case b.state != StateClosed:
		// Admitted while closed but finished after a trip; the outcome is stale.
	case failed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	default:
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
