package retry

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the position of a circuit breaker.
type State int

const (
	Closed   State = iota // calls pass
	Open                  // calls fail fast until the open period ends
	HalfOpen              // probing: successes close, any failure reopens
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops calling a remote API after repeated transient failures and
// probes it again once openFor has passed.
type Breaker struct {
	name      string
	failures  int
	successes int
	openFor   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	failed      int
	succeeded   int
	lastFailure time.Time
}

// NewBreaker opens after failures consecutive failures and closes again
// after successes consecutive half-open successes.
func NewBreaker(name string, failures, successes int, openFor time.Duration, logger *slog.Logger) *Breaker {
	if successes < 1 {
		successes = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:      name,
		failures:  failures,
		successes: successes,
		openFor:   openFor,
		now:       time.Now,
		logger:    logger,
	}
}

// Allow reports whether a call may go out now.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.lastFailure) >= b.openFor {
		b.moveTo(HalfOpen)
		return nil
	}
	return ErrOpen
}

// Success records a call that went through.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failed = 0
	case HalfOpen:
		b.succeeded++
		if b.succeeded >= b.successes {
			b.moveTo(Closed)
		}
	}
}

// Failure records a transient failure.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case Closed:
		b.failed++
		if b.failed >= b.failures {
			b.moveTo(Open)
		}
	case HalfOpen:
		b.moveTo(Open)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count while closed.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(s State) {
	from := b.state
	b.state = s
	b.succeeded = 0
	if s == Closed {
		b.failed = 0
	}
	if s == Open {
		b.logger.Warn("circuit breaker opened", "api", b.name, "from", from, "failures", b.failed, "reopen_in", b.openFor)
		return
	}
	b.logger.Info("circuit breaker state transition", "api", b.name, "from", from, "to", s)
}
