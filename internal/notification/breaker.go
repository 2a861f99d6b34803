package notification

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/model"
)

// ErrCircuitOpen is returned without calling the wrapped notifier while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // deliveries pass through
	StateOpen     State = 1 // deliveries rejected immediately
	StateHalfOpen State = 2 // one probe delivery allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards a remote notifier. After maxFailures consecutive failed
// deliveries it opens and rejects signals for resetTimeout, then lets one
// probe through: success closes it, failure reopens it. A dead endpoint
// therefore costs one timeout per resetTimeout instead of one per signal.
type Breaker struct {
	next Named

	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	now          func() time.Time

	// OnStateChange is called on transitions, under the breaker lock.
	OnStateChange func(name string, from, to State)
}

// NewBreaker wraps next.
// maxFailures: consecutive failures before opening (e.g., 3)
// resetTimeout: time to wait before a half-open probe (e.g., 5m)
func NewBreaker(next Named, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		next:         next,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

func (b *Breaker) Name() string { return b.next.Name() }

// Notify delivers ev through the wrapped notifier unless the breaker is open.
func (b *Breaker) Notify(ctx context.Context, ev model.SignalEvent) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return errors.Wrap(ErrCircuitOpen, b.next.Name())
		}
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	err := b.next.Notify(ctx, ev)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
		return err
	}

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
	return nil
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	log.WithField("notifier", b.next.Name()).Warnf("[notify] circuit %s -> %s", from, to)
	if b.OnStateChange != nil {
		b.OnStateChange(b.next.Name(), from, to)
	}
}
