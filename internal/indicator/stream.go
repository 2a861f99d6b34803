package indicator

import (
	"time"

	"github.com/pkg/errors"

	"rsi-divergence/internal/model"
)

// Stream attaches RSI and Bollinger values to closed candles one at a time.
// Not safe for concurrent use.
type Stream struct {
	cfg    Config
	rsi    *RSI
	boll   *Bollinger
	lastTS time.Time
	fed    int
}

// NewStream creates a cold stream.
func NewStream(cfg Config) *Stream {
	return &Stream{
		cfg:  cfg,
		rsi:  NewRSI(cfg.RSIPeriod),
		boll: NewBollinger(cfg.BBPeriod, cfg.BBStdDev),
	}
}

// Next feeds one closed candle and returns a copy with indicator fields set.
// Candles must arrive in ascending TS order; the caller enforces that.
func (s *Stream) Next(c model.Candle) model.Candle {
	s.rsi.Update(c.Close)
	s.boll.Update(c.Close)
	s.lastTS = c.TS
	s.fed++

	c.RSI, c.RSIReady = 0, false
	if s.rsi.Ready() {
		c.RSI, c.RSIReady = s.rsi.Value(), true
	}
	c.UpperBand, c.LowerBand, c.BandsReady = 0, 0, false
	if s.boll.Ready() {
		c.UpperBand, c.LowerBand, c.BandsReady = s.boll.Upper(), s.boll.Lower(), true
	}
	return c
}

// LastTS returns the timestamp of the last candle fed, zero when cold.
func (s *Stream) LastTS() time.Time { return s.lastTS }

// Fed returns how many candles the stream has consumed.
func (s *Stream) Fed() int { return s.fed }

// Config returns the stream parameters.
func (s *Stream) Config() Config { return s.cfg }

// Snapshot captures the stream state.
func (s *Stream) Snapshot() *StreamSnapshot {
	return &StreamSnapshot{
		Version:   snapshotVersion,
		Config:    s.cfg,
		LastTS:    s.lastTS,
		Fed:       s.fed,
		RSI:       s.rsi.Snapshot(),
		Bollinger: s.boll.Snapshot(),
	}
}

// Restore replaces the stream state with snap. The snapshot must have been
// taken from a stream with the same configuration.
func (s *Stream) Restore(snap *StreamSnapshot) error {
	if snap == nil {
		return errors.New("nil stream snapshot")
	}
	if snap.Config != s.cfg {
		return errors.Errorf("stream snapshot config %+v does not match %+v", snap.Config, s.cfg)
	}
	if err := s.rsi.RestoreFromSnapshot(snap.RSI); err != nil {
		return errors.Wrap(err, "restore rsi")
	}
	if err := s.boll.RestoreFromSnapshot(snap.Bollinger); err != nil {
		return errors.Wrap(err, "restore bollinger")
	}
	s.lastTS = snap.LastTS
	s.fed = snap.Fed
	return nil
}

// Reset returns the stream to its cold state.
func (s *Stream) Reset() {
	*s = *NewStream(s.cfg)
}
