// Package divergence detects regular RSI divergence on a closing basis.
//
// Rules:
//   - fewer candles between the pivots means a stronger divergence, so the
//     shortest matching distance wins
//   - Point A and Point B are both counted in the distance (3..7)
//   - bearish (top): Green A, Green B, higher close, lower RSI, Red confirmation
//   - bullish (bottom): Red A, Red B, lower close, higher RSI, Green confirmation
//   - Point A volume must exceed Point B volume when the feed has volume
//   - some candle in [A, B] must touch the Bollinger band on the pattern's side
//
// Detect is a pure function: it keeps no state and never mutates its input,
// so it may run concurrently on independent series.
package divergence

import (
	"rsi-divergence/internal/model"
)

const (
	// MinCandles is the shortest A..B distance, both pivots included.
	MinCandles = 3
	// MaxCandles is the longest A..B distance, both pivots included.
	MaxCandles = 7
	// MinSeriesLen is the smallest series that can produce a signal:
	// MinCandles pattern candles plus the confirmation candle.
	MinSeriesLen = MinCandles + 1
)

// Detect scans series for a divergence that completes on its last candle.
//
// The last candle is the confirmation candle and the one before it is
// Point B. It returns (nil, nil) when the series is too short or nothing
// matches, and an error wrapping ErrMalformedSeries when the series itself
// is invalid.
func Detect(series []model.Candle) (*model.Signal, error) {
	if len(series) < MinSeriesLen {
		return nil, nil
	}
	if err := Validate(series); err != nil {
		return nil, err
	}

	confIdx := len(series) - 1
	bIdx := confIdx - 1
	conf := &series[confIdx]
	b := &series[bIdx]

	confColor := conf.Color()
	bColor := b.Color()
	// The confirmation must oppose B; a doji confirms nothing.
	if confColor == model.Doji || bColor == model.Doji || confColor == bColor {
		return nil, nil
	}
	// Warm-up RSI never acts as B or as the confirmation.
	if !b.RSIReady || !conf.RSIReady {
		return nil, nil
	}

	for dist := MinCandles; dist <= MaxCandles; dist++ {
		aIdx := bIdx - (dist - 1)
		if aIdx < 0 {
			continue
		}
		a := &series[aIdx]
		if !a.RSIReady || a.Color() != bColor {
			continue
		}
		if !volumeValid(a, b) {
			continue
		}

		switch bColor {
		case model.Green: // bearish: higher high in price, lower high in RSI
			if b.Close > a.Close && b.RSI < a.RSI {
				touched, ok := bandTouched(series[aIdx:bIdx+1], model.Bearish)
				if ok {
					return newSignal(model.Bearish, dist, a, b, conf, touched), nil
				}
			}
		case model.Red: // bullish: lower low in price, higher low in RSI
			if b.Close < a.Close && b.RSI > a.RSI {
				touched, ok := bandTouched(series[aIdx:bIdx+1], model.Bullish)
				if ok {
					return newSignal(model.Bullish, dist, a, b, conf, touched), nil
				}
			}
		}
	}

	return nil, nil
}

// volumeValid requires Point A to carry more volume than Point B. When
// either side reports zero volume the feed has none and the rule is skipped.
func volumeValid(a, b *model.Candle) bool {
	if a.Volume > 0 && b.Volume > 0 {
		return a.Volume > b.Volume
	}
	return true
}

// bandTouched checks the Bollinger touch over the pivot range [A, B].
// touched reports whether a candle reached the band on the pattern's side;
// ok reports whether the filter passes. A range without any band data
// counts as touched.
func bandTouched(span []model.Candle, dir model.Direction) (touched, ok bool) {
	haveBands := false
	for i := range span {
		c := &span[i]
		if !c.BandsReady {
			continue
		}
		haveBands = true
		if dir == model.Bearish && c.TouchesUpper() {
			return true, true
		}
		if dir == model.Bullish && c.TouchesLower() {
			return true, true
		}
	}
	if !haveBands {
		return true, true
	}
	return false, false
}

func newSignal(dir model.Direction, dist int, a, b, conf *model.Candle, touched bool) *model.Signal {
	pattern := model.PatternBullish
	if dir == model.Bearish {
		pattern = model.PatternBearish
	}
	return &model.Signal{
		Direction: dir,
		Distance:  dist,
		Pattern:   pattern,
		PointA:    model.Pivot{TS: a.TS, Close: a.Close, RSI: a.RSI},
		PointB:    model.Pivot{TS: b.TS, Close: b.Close, RSI: b.RSI},
		Confirmation: model.Confirmation{
			TS:    conf.TS,
			Close: conf.Close,
			High:  conf.High,
			Low:   conf.Low,
		},
		BandTouched: touched,
	}
}
