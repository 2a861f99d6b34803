package divergence

import (
	"math"

	"github.com/pkg/errors"

	"rsi-divergence/internal/model"
)

// ErrMalformedSeries is returned when the input cannot be a valid candle
// series. It is distinct from "no signal".
var ErrMalformedSeries = errors.New("malformed candle series")

// Validate checks ordering and per-candle invariants:
// strictly increasing timestamps plus everything ValidateCandle checks.
func Validate(series []model.Candle) error {
	for i := range series {
		c := &series[i]
		if i > 0 && !c.TS.After(series[i-1].TS) {
			if c.TS.Equal(series[i-1].TS) {
				return errors.Wrapf(ErrMalformedSeries, "duplicate timestamp %s at index %d", c.TS.Format("2006-01-02 15:04:05"), i)
			}
			return errors.Wrapf(ErrMalformedSeries, "timestamp at index %d is before its predecessor", i)
		}
		if err := ValidateCandle(*c); err != nil {
			return errors.Wrapf(err, "index %d", i)
		}
	}
	return nil
}

// ValidateCandle checks a single candle: finite prices,
// Low <= min(Open, Close) <= max(Open, Close) <= High, and Volume >= 0.
func ValidateCandle(c model.Candle) error {
	if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) || !finite(c.Volume) {
		return errors.Wrap(ErrMalformedSeries, "non-finite value")
	}
	if c.Low > math.Min(c.Open, c.Close) || math.Max(c.Open, c.Close) > c.High {
		return errors.Wrapf(ErrMalformedSeries, "OHLC out of range (o=%.2f h=%.2f l=%.2f c=%.2f)",
			c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return errors.Wrap(ErrMalformedSeries, "negative volume")
	}
	if c.RSIReady && !finite(c.RSI) {
		return errors.Wrap(ErrMalformedSeries, "RSI marked ready but not finite")
	}
	if c.BandsReady && (!finite(c.UpperBand) || !finite(c.LowerBand)) {
		return errors.Wrap(ErrMalformedSeries, "bands marked ready but not finite")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
