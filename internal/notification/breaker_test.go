package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-divergence/internal/model"
)

var errDown = errors.New("endpoint down")

type fakeNotifier struct {
	name string
	mu   sync.Mutex
	fail bool
	got  []model.SignalEvent
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(_ context.Context, ev model.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	if f.fail {
		return errDown
	}
	return nil
}

func (f *fakeNotifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeNotifier) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func newTestBreaker(next Named, max int, reset time.Duration) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, model.IST)}
	b := NewBreaker(next, max, reset)
	b.now = c.now
	return b, c
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(&fakeNotifier{name: "x"}, 3, time.Minute)
	assert.Equal(t, StateClosed, b.CurrentState())
	assert.Equal(t, "x", b.Name())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	f := &fakeNotifier{name: "telegram", fail: true}
	b, _ := newTestBreaker(f, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Notify(ctx, model.SignalEvent{})
		assert.ErrorIs(t, err, errDown)
	}
	assert.Equal(t, StateOpen, b.CurrentState())

	err := b.Notify(ctx, model.SignalEvent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, f.calls(), "open breaker must not call the notifier")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	f := &fakeNotifier{name: "x", fail: true}
	b, _ := newTestBreaker(f, 3, time.Minute)
	ctx := context.Background()

	_ = b.Notify(ctx, model.SignalEvent{})
	_ = b.Notify(ctx, model.SignalEvent{})
	f.setFail(false)
	require.NoError(t, b.Notify(ctx, model.SignalEvent{}))
	f.setFail(true)
	_ = b.Notify(ctx, model.SignalEvent{})
	_ = b.Notify(ctx, model.SignalEvent{})

	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	f := &fakeNotifier{name: "x", fail: true}
	b, c := newTestBreaker(f, 1, time.Minute)
	ctx := context.Background()

	_ = b.Notify(ctx, model.SignalEvent{})
	require.Equal(t, StateOpen, b.CurrentState())

	c.advance(30 * time.Second)
	assert.ErrorIs(t, b.Notify(ctx, model.SignalEvent{}), ErrCircuitOpen)

	t.Run("failed probe reopens", func(t *testing.T) {
		c.advance(31 * time.Second)
		assert.ErrorIs(t, b.Notify(ctx, model.SignalEvent{}), errDown)
		assert.Equal(t, StateOpen, b.CurrentState())
		assert.ErrorIs(t, b.Notify(ctx, model.SignalEvent{}), ErrCircuitOpen)
	})

	t.Run("successful probe closes", func(t *testing.T) {
		c.advance(time.Minute)
		f.setFail(false)
		require.NoError(t, b.Notify(ctx, model.SignalEvent{}))
		assert.Equal(t, StateClosed, b.CurrentState())
	})
}

func TestBreaker_OnStateChange(t *testing.T) {
	f := &fakeNotifier{name: "slack", fail: true}
	b, c := newTestBreaker(f, 1, time.Second)

	var seen []string
	b.OnStateChange = func(name string, from, to State) {
		seen = append(seen, name+":"+from.String()+"->"+to.String())
	}

	ctx := context.Background()
	_ = b.Notify(ctx, model.SignalEvent{})
	c.advance(2 * time.Second)
	f.setFail(false)
	_ = b.Notify(ctx, model.SignalEvent{})

	assert.Equal(t, []string{
		"slack:closed->open",
		"slack:open->half-open",
		"slack:half-open->closed",
	}, seen)
}

func TestBreaker_MinFailures(t *testing.T) {
	f := &fakeNotifier{name: "x", fail: true}
	b, _ := newTestBreaker(f, 0, time.Minute)
	_ = b.Notify(context.Background(), model.SignalEvent{})
	assert.Equal(t, StateOpen, b.CurrentState())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unknown", State(9).String())
}
