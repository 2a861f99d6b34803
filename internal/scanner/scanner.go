// Package scanner runs the divergence detection loop: fetch closed candles,
// attach indicators, detect, deduplicate and notify.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/indicator"
	"rsi-divergence/internal/metrics"
	"rsi-divergence/internal/model"
	"rsi-divergence/internal/ringbuf"
	"rsi-divergence/internal/store/redis"
)

// Config is what one scanner watches.
type Config struct {
	Instrument   model.Instrument
	Timeframe    model.Timeframe
	Lookback     time.Duration
	FetchTimeout time.Duration
	WindowSize   int
	Indicators   indicator.Config
}

// Scanner owns the rolling candle window and indicator state for one
// instrument and timeframe. Cycles are serialized.
type Scanner struct {
	cfg      Config
	source   model.CandleSource
	notifier model.Notifier
	state    model.StateStore // optional
	metrics  *metrics.Metrics // optional
	health   *metrics.HealthStatus

	// cycleMu serializes RunCycle; mu guards the state below and is not
	// held across fetch or delivery.
	cycleMu sync.Mutex
	mu      sync.Mutex
	stream  *indicator.Stream
	window  *ringbuf.Window[model.Candle]
	seen    time.Time // newest bar consumed, fed or rejected
	dedup   DedupState
	last    *model.SignalEvent

	now   func() time.Time
	newID func() string
}

// Option configures optional collaborators.
type Option func(*Scanner)

// WithStateStore persists the dedup state.
func WithStateStore(s model.StateStore) Option { return func(sc *Scanner) { sc.state = s } }

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(sc *Scanner) { sc.metrics = m } }

// WithHealth records cycle outcomes for /healthz.
func WithHealth(h *metrics.HealthStatus) Option { return func(sc *Scanner) { sc.health = h } }

// New creates a cold scanner.
func New(cfg Config, source model.CandleSource, notifier model.Notifier, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		stream:   indicator.NewStream(cfg.Indicators),
		window:   ringbuf.New[model.Candle](cfg.WindowSize),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StateKey is the dedup persistence key for this scanner.
func (s *Scanner) StateKey() string {
	return redis.StateKey(s.cfg.Instrument.Exchange, s.cfg.Instrument.Token, s.cfg.Timeframe.String())
}

// LoadState restores the dedup state from the state store, if any.
func (s *Scanner) LoadState(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	ts, err := s.state.LoadLastConfirmation(ctx, s.StateKey())
	if err != nil {
		return errors.Wrap(err, "load dedup state")
	}

	s.mu.Lock()
	s.dedup = DedupState{LastConfirmation: ts}
	s.mu.Unlock()

	if !ts.IsZero() {
		log.Infof("[scanner] last notified confirmation %s", ts.In(model.IST).Format("2006-01-02 15:04"))
	}
	return nil
}

// Dedup returns the current dedup state.
func (s *Scanner) Dedup() DedupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dedup
}

// LastSignal returns the last signal event handed to the notifier, nil if none.
func (s *Scanner) LastSignal() *model.SignalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	ev := *s.last
	return &ev
}

// Window returns a copy of the candles currently held, oldest first, with
// indicators attached.
func (s *Scanner) Window() []model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Slice()
}

func (s *Scanner) newEvent(sig *model.Signal, now time.Time) model.SignalEvent {
	return model.SignalEvent{
		ID:         s.newID(),
		Instrument: s.cfg.Instrument,
		Timeframe:  s.cfg.Timeframe,
		DetectedAt: now,
		Signal:     *sig,
	}
}
