package scanner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rsi-divergence/internal/divergence"
	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/metrics"
	"rsi-divergence/internal/model"
	"rsi-divergence/internal/source"
)

// CycleResult describes one scan.
type CycleResult struct {
	Result  string // one of the metrics.Result* values
	Fetched int
	New     int
	Signal  *model.Signal
	Event   *model.SignalEvent
}

// RunCycle performs one scan:
//
//	fetch -> drop forming bar -> screen and feed new bars -> detect -> dedup -> notify -> save state
//
// Bars that fail validation are rejected and never fed; the remaining bars
// are. A fetch failure, or a cycle whose new bars were all rejected, aborts
// the cycle. Delivery and state persistence failures are logged and counted
// but do not fail the cycle.
func (s *Scanner) RunCycle(ctx context.Context) (*CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx = logger.NewTrace(ctx)
	entry := log.WithFields(logger.Fields(ctx))
	now := s.now()
	res := &CycleResult{}

	candles, err := s.fetch(ctx, now)
	if err != nil {
		res.Result = metrics.ResultFetchError
		s.finish(res, time.Time{})
		if s.metrics != nil {
			s.metrics.FetchFailures.Inc()
		}
		entry.WithError(err).Error("[SCAN] fetch failed")
		return res, err
	}
	candles = source.DropForming(candles, s.cfg.Timeframe, now)
	res.Fetched = len(candles)

	ev, last, err := s.process(entry, now, candles, res)
	if err != nil || ev == nil {
		s.finish(res, last)
		return res, err
	}

	if err := s.notifier.Notify(ctx, *ev); err != nil {
		entry.WithError(err).Warn("[SCAN] signal delivery incomplete")
	}
	if s.state != nil {
		if err := s.state.SaveLastConfirmation(ctx, s.StateKey(), ev.Signal.Confirmation.TS); err != nil {
			entry.WithError(err).Warn("[SCAN] could not persist dedup state")
		}
	}

	s.finish(res, last)
	return res, nil
}

// process runs the locked part of a cycle. It returns the event to deliver,
// if any, and the newest bar in the window.
func (s *Scanner) process(entry *log.Entry, now time.Time, candles []model.Candle, res *CycleResult) (*model.SignalEvent, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.freshBars(candles)
	res.New = len(fresh)
	if len(fresh) == 0 {
		res.Result = metrics.ResultNoNewBar
		entry.Debugf("[SCAN] no new closed bar (last %s)", s.stream.LastTS().In(model.IST).Format("15:04"))
		return nil, s.stream.LastTS(), nil
	}

	clean, rejected := s.screen(fresh)
	for _, rerr := range multierr.Errors(rejected) {
		entry.WithError(rerr).Warn("[SCAN] rejected malformed bar")
	}
	if s.metrics != nil && rejected != nil {
		s.metrics.MalformedSeries.Add(float64(len(multierr.Errors(rejected))))
	}
	if len(clean) == 0 {
		res.Result = metrics.ResultMalformed
		entry.Error("[SCAN] no valid new bar, skipping cycle")
		return nil, s.stream.LastTS(), rejected
	}

	detectStart := time.Now()
	sig, err := s.advance(clean)
	if s.metrics != nil {
		s.metrics.DetectDur.Observe(time.Since(detectStart).Seconds())
	}
	if err != nil {
		res.Result = metrics.ResultMalformed
		if s.metrics != nil {
			s.metrics.MalformedSeries.Inc()
		}
		entry.WithError(err).Error("[SCAN] malformed candle series, skipping cycle")
		return nil, s.stream.LastTS(), err
	}

	last, _ := s.window.Last()
	s.logScan(entry, last, sig)
	if s.metrics != nil {
		s.metrics.LastCandleLag.Set(now.Sub(s.cfg.Timeframe.CloseTime(last.TS)).Seconds())
	}

	if sig == nil {
		res.Result = metrics.ResultNoSignal
		return nil, last.TS, nil
	}
	res.Signal = sig

	next, ok := s.dedup.Admit(sig)
	if !ok {
		res.Result = metrics.ResultSuppressed
		if s.metrics != nil {
			s.metrics.SignalsSuppressed.Inc()
		}
		entry.Infof("[SCAN] %s divergence at %s already notified", sig.Direction,
			sig.Confirmation.TS.In(model.IST).Format("2006-01-02 15:04"))
		return nil, last.TS, nil
	}
	s.dedup = next

	ev := s.newEvent(sig, now)
	res.Event = &ev
	s.last = &ev
	res.Result = metrics.ResultSignal
	if s.metrics != nil {
		s.metrics.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()
	}
	return &ev, last.TS, nil
}

func (s *Scanner) fetch(ctx context.Context, now time.Time) ([]model.Candle, error) {
	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	candles, err := s.source.Fetch(fetchCtx, model.FetchRequest{
		Instrument: s.cfg.Instrument,
		Timeframe:  s.cfg.Timeframe,
		From:       now.Add(-s.cfg.Lookback),
		To:         now,
	})
	if s.metrics != nil {
		s.metrics.FetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s %s", s.cfg.Instrument.Symbol, s.cfg.Timeframe)
	}
	return candles, nil
}

// freshBars returns the closed bars not yet consumed. When the fetch no
// longer overlaps them (a gap longer than the lookback), the state is
// discarded and the whole fetch is replayed.
func (s *Scanner) freshBars(candles []model.Candle) []model.Candle {
	if s.seen.IsZero() || len(candles) == 0 {
		return candles
	}
	if candles[0].TS.After(s.seen) {
		log.Warnf("[scanner] history gap after %s, rebuilding indicators", s.seen.In(model.IST).Format(time.RFC3339))
		s.stream.Reset()
		s.window.Reset()
		s.seen = time.Time{}
		return candles
	}
	for i, c := range candles {
		if c.TS.After(s.seen) {
			return candles[i:]
		}
	}
	return nil
}

// screen splits fresh into bars safe to feed and the combined rejection
// errors. Every fresh bar counts as consumed, so a rejected bar is not
// offered again.
func (s *Scanner) screen(fresh []model.Candle) ([]model.Candle, error) {
	var (
		clean    []model.Candle
		rejected error
	)
	prev := s.seen
	for _, c := range fresh {
		ts := c.TS.In(model.IST).Format("2006-01-02 15:04")
		switch {
		case !prev.IsZero() && !c.TS.After(prev):
			rejected = multierr.Append(rejected, errors.Wrapf(divergence.ErrMalformedSeries, "bar %s out of order", ts))
		default:
			if err := divergence.ValidateCandle(c); err != nil {
				rejected = multierr.Append(rejected, errors.Wrapf(err, "bar %s", ts))
				break
			}
			clean = append(clean, c)
			prev = c.TS
		}
		if c.TS.After(s.seen) {
			s.seen = c.TS
		}
	}
	return clean, rejected
}

// advance feeds clean bars into the stream and window, then runs detection
// on the window. On a malformed series the stream and window are rolled
// back.
func (s *Scanner) advance(clean []model.Candle) (*model.Signal, error) {
	snap := s.stream.Snapshot()
	prev := s.window.Slice()

	for _, c := range clean {
		s.window.Push(s.stream.Next(c))
	}

	sig, err := divergence.Detect(s.window.Slice())
	if err != nil {
		if rerr := s.stream.Restore(snap); rerr != nil {
			// cannot happen with a snapshot from the same stream
			s.stream.Reset()
			prev = nil
		}
		s.window.Reset()
		for _, c := range prev {
			s.window.Push(c)
		}
		return nil, err
	}
	return sig, nil
}

func (s *Scanner) logScan(entry *log.Entry, last model.Candle, sig *model.Signal) {
	fields := log.Fields{
		"symbol":    s.cfg.Instrument.Symbol,
		"timeframe": s.cfg.Timeframe,
		"candle":    last.TS.In(model.IST).Format("2006-01-02 15:04"),
		"close":     last.Close,
		"color":     last.Color().String(),
	}
	if last.RSIReady {
		fields["rsi"] = last.RSI
	}
	if last.BandsReady {
		fields["bb_upper"] = last.UpperBand
		fields["bb_lower"] = last.LowerBand
	}
	if sig == nil {
		entry.WithFields(fields).Info("[SCAN] no divergence")
		return
	}
	fields["distance"] = sig.Distance
	fields["band_touched"] = sig.BandTouched
	entry.WithFields(fields).Infof("[SCAN] %s divergence (%s)", sig.Direction, sig.Pattern)
}

func (s *Scanner) finish(res *CycleResult, lastCandle time.Time) {
	if s.metrics != nil {
		s.metrics.CyclesTotal.WithLabelValues(res.Result).Inc()
	}
	if s.health != nil {
		s.health.RecordCycle(res.Result, lastCandle)
	}
}
