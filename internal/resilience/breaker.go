package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBackendUnavailable is returned while the breaker is open.
var ErrBackendUnavailable = eris.New("resilience: backend unavailable")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// Closed lets calls through.
	Closed BreakerState = iota
	// Open rejects calls until the cooldown elapses.
	Open
	// Probing lets one call through to test the backend.
	Probing
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	}
	return "unknown"
}

// Breaker stops calling the backend after repeated transient failures.
// Non-transient errors such as a 404 do not count.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker returns a Breaker that opens after threshold consecutive
// transient failures and probes again after cooldown. threshold <= 0
// disables it.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return Probing
	}
	return b.state
}

// Call runs fn unless the breaker is open.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

func (b *Breaker) allow() error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrBackendUnavailable
		}
		b.state = Probing
		b.probing = true
		return nil
	case Probing:
		if b.probing {
			return ErrBackendUnavailable
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil || !IsTransient(err) {
		if b.state != Closed {
			zap.L().Info("resilience: backend recovered")
		}
		b.state = Closed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == Probing || b.failures >= b.threshold {
		if b.state != Open {
			zap.L().Warn("resilience: backend breaker open",
				zap.Int("failures", b.failures),
				zap.Duration("cooldown", b.cooldown),
				zap.Error(err),
			)
		}
		b.state = Open
		b.openedAt = b.now()
	}
}
