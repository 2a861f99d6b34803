package source

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/model"
)

// CandleCache is the storage the cached source needs. Implemented by
// sqlite.Store.
type CandleCache interface {
	UpsertCandles(ctx context.Context, inst model.Instrument, tf model.Timeframe, candles []model.Candle) error
	LatestTS(ctx context.Context, inst model.Instrument, tf model.Timeframe) (time.Time, bool, error)
	Candles(ctx context.Context, inst model.Instrument, tf model.Timeframe, from, to time.Time) ([]model.Candle, error)
	Prune(ctx context.Context, inst model.Instrument, tf model.Timeframe, before time.Time) (int64, error)
}

// Cached fronts an upstream source with a candle cache. Each fetch asks the
// upstream only for bars from the newest cached one onward, then serves the
// requested window from the cache. Upstream failure fails the fetch; stale
// cache contents are never served in its place.
type Cached struct {
	upstream model.CandleSource
	cache    CandleCache

	// Retain is how much history is kept; older bars are pruned. Zero keeps all.
	Retain time.Duration
}

// NewCached wraps upstream with cache.
func NewCached(upstream model.CandleSource, cache CandleCache, retain time.Duration) *Cached {
	return &Cached{upstream: upstream, cache: cache, Retain: retain}
}

func (c *Cached) Fetch(ctx context.Context, req model.FetchRequest) ([]model.Candle, error) {
	fields := logger.Fields(ctx)

	upReq := req
	latest, ok, err := c.cache.LatestTS(ctx, req.Instrument, req.Timeframe)
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("[cache] latest ts lookup failed, fetching full window")
	} else if ok && latest.After(req.From) && !latest.After(req.To) {
		// The newest cached bar may have been stored while forming; fetch it again.
		upReq.From = latest
	}

	fresh, err := c.upstream.Fetch(ctx, upReq)
	if err != nil {
		return nil, err
	}
	if err := c.cache.UpsertCandles(ctx, req.Instrument, req.Timeframe, fresh); err != nil {
		return nil, errors.Wrap(err, "cache upsert")
	}
	if c.Retain > 0 {
		if n, err := c.cache.Prune(ctx, req.Instrument, req.Timeframe, req.To.Add(-c.Retain)); err != nil {
			log.WithFields(fields).WithError(err).Warn("[cache] prune failed")
		} else if n > 0 {
			log.WithFields(fields).Debugf("[cache] pruned %d old candles", n)
		}
	}

	out, err := c.cache.Candles(ctx, req.Instrument, req.Timeframe, req.From, req.To)
	if err != nil {
		return nil, errors.Wrap(err, "cache read")
	}
	log.WithFields(fields).Debugf("[cache] fetched %d new, serving %d candles", len(fresh), len(out))
	return out, nil
}
