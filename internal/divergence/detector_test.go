package divergence

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-divergence/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

// bar builds a candle with wicks 10 points beyond the body, RSI attached and
// no band data.
func bar(open, close, rsi, volume float64) model.Candle {
	hi, lo := open, close
	if close > open {
		hi, lo = close, open
	}
	return model.Candle{
		Open: open, High: hi + 10, Low: lo - 10, Close: close,
		Volume: volume, RSI: rsi, RSIReady: true,
	}
}

// series stamps candles at 5 minute intervals.
func series(cs ...model.Candle) []model.Candle {
	for i := range cs {
		cs[i].TS = t0.Add(time.Duration(i) * 5 * time.Minute)
	}
	return cs
}

func withBands(cs []model.Candle, upper, lower float64) []model.Candle {
	for i := range cs {
		cs[i].UpperBand = upper
		cs[i].LowerBand = lower
		cs[i].BandsReady = true
	}
	return cs
}

func TestDetect_TooShort(t *testing.T) {
	full := series(
		bar(100, 90, 30, 150),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100),
		bar(85, 95, 40, 100),
	)
	for n := 0; n < MinSeriesLen; n++ {
		sig, err := Detect(full[:n])
		require.NoError(t, err)
		assert.Nil(t, sig, "len=%d", n)
	}
}

func TestDetect_ScenarioA_Bullish3(t *testing.T) {
	s := series(
		bar(100, 90, 30, 150), // A: red
		bar(92, 95, 35, 100),  // noise
		bar(88, 85, 32, 100),  // B: red, lower close, higher RSI
		bar(85, 95, 40, 100),  // confirmation: green
	)

	sig, err := Detect(s)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, model.Bullish, sig.Direction)
	assert.Equal(t, 3, sig.Distance)
	assert.Equal(t, "Red-Red-Green", sig.Pattern)
	assert.Equal(t, "3 candles", sig.Strength())
	assert.Equal(t, model.Pivot{TS: s[0].TS, Close: 90, RSI: 30}, sig.PointA)
	assert.Equal(t, model.Pivot{TS: s[2].TS, Close: 85, RSI: 32}, sig.PointB)
	assert.Equal(t, model.Confirmation{TS: s[3].TS, Close: 95, High: 105, Low: 75}, sig.Confirmation)
	assert.True(t, sig.BandTouched, "no band data counts as touched")
}

// Equal volume at A and B fails the strict A > B volume rule.
func TestDetect_ScenarioA_EqualVolume(t *testing.T) {
	s := series(
		bar(100, 90, 30, 100),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100),
		bar(85, 95, 40, 100),
	)

	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestDetect_ScenarioB_Bearish3(t *testing.T) {
	s := series(
		bar(100, 110, 70, 0), // A: green
		bar(108, 105, 65, 0), // noise
		bar(112, 115, 68, 0), // B: green, higher close, lower RSI
		bar(115, 108, 60, 0), // confirmation: red
	)

	sig, err := Detect(s)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, model.Bearish, sig.Direction)
	assert.Equal(t, 3, sig.Distance)
	assert.Equal(t, "Green-Green-Red", sig.Pattern)
	assert.Equal(t, 110.0, sig.PointA.Close)
	assert.Equal(t, 115.0, sig.PointB.Close)
	assert.Equal(t, 108.0, sig.Confirmation.Close)
}

func TestDetect_ScenarioC_ColorMismatch(t *testing.T) {
	s := series(
		bar(90, 100, 30, 150), // A is green, bullish needs red
		bar(95, 92, 35, 100),
		bar(98, 95, 32, 100), // B: red, lower close than A, higher RSI
		bar(95, 100, 40, 100),
	)

	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestDetect_ScenarioD_DistanceBeyondMax(t *testing.T) {
	cs := []model.Candle{bar(100, 90, 30, 150)} // A
	for i := 0; i < 6; i++ {
		cs = append(cs, bar(90, 90, 35, 100)) // flat noise
	}
	cs = append(cs, bar(88, 85, 32, 100), bar(85, 95, 40, 100)) // B, confirmation
	s := series(cs...)
	require.Len(t, s, 9)

	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig, "A..B spans 8 candles, beyond MaxCandles")

	// One fewer noise candle puts A at exactly MaxCandles.
	s = series(append(append([]model.Candle{}, cs[0]), cs[2:]...)...)
	sig, err = Detect(s)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, MaxCandles, sig.Distance)
}

func TestDetect_SameColorConfirmation(t *testing.T) {
	s := series(
		bar(100, 90, 30, 150),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100), // B red
		bar(85, 80, 40, 100), // confirmation red too
	)
	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestDetect_DojiNeverParticipates(t *testing.T) {
	base := func() []model.Candle {
		return series(
			bar(100, 90, 30, 150),
			bar(92, 95, 35, 100),
			bar(88, 85, 32, 100),
			bar(85, 95, 40, 100),
		)
	}

	s := base()
	s[3] = bar(90, 90, 40, 100) // doji confirmation
	s[3].TS = t0.Add(15 * time.Minute)
	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig, "doji confirmation")

	s = base()
	s[0].Open = s[0].Close // doji at A
	sig, err = Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig, "doji at Point A")
}

func TestDetect_PrefersShortestDistance(t *testing.T) {
	build := func(rsiA3 float64) []model.Candle {
		return series(
			bar(100, 95, 25, 200),    // candidate A at distance 5
			bar(96, 99, 40, 100),     // noise
			bar(100, 90, rsiA3, 150), // candidate A at distance 3
			bar(92, 95, 35, 100),     // noise
			bar(88, 85, 32, 100),     // B
			bar(85, 95, 40, 100),     // confirmation
		)
	}

	sig, err := Detect(build(30))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, 3, sig.Distance)
	assert.Equal(t, 90.0, sig.PointA.Close)

	// Break the distance-3 pair on RSI; the distance-5 pair is reported.
	sig, err = Detect(build(33))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, 5, sig.Distance)
	assert.Equal(t, 95.0, sig.PointA.Close)
}

func TestDetect_StrictComparisons(t *testing.T) {
	// Equal closes are not a lower low.
	s := series(
		bar(100, 85, 30, 150),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100),
		bar(85, 95, 40, 100),
	)
	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig)

	// Equal RSI is not a higher low.
	s = series(
		bar(100, 90, 32, 150),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100),
		bar(85, 95, 40, 100),
	)
	sig, err = Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestDetect_VolumeFilter(t *testing.T) {
	build := func(volA, volB float64) []model.Candle {
		return series(
			bar(100, 90, 30, volA),
			bar(92, 95, 35, 100),
			bar(88, 85, 32, volB),
			bar(85, 95, 40, 100),
		)
	}

	tests := []struct {
		name       string
		volA, volB float64
		wantSignal bool
	}{
		{"A above B", 150, 100, true},
		{"A equals B", 100, 100, false},
		{"A below B", 80, 100, false},
		{"A unavailable", 0, 100, true},
		{"B unavailable", 100, 0, true},
		{"index instrument", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Detect(build(tt.volA, tt.volB))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSignal, sig != nil)
		})
	}
}

func TestDetect_BandFilter(t *testing.T) {
	bullish := func() []model.Candle {
		return series(
			bar(100, 90, 30, 150),
			bar(92, 95, 35, 100),
			bar(88, 85, 32, 100),
			bar(85, 95, 40, 100),
		)
	}

	t.Run("bands present, none touched", func(t *testing.T) {
		s := withBands(bullish(), 200, 10)
		sig, err := Detect(s)
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("noise candle touches lower band", func(t *testing.T) {
		s := withBands(bullish(), 200, 10)
		s[1].LowerBand = s[1].Low
		sig, err := Detect(s)
		require.NoError(t, err)
		require.NotNil(t, sig)
		assert.True(t, sig.BandTouched)
	})

	t.Run("touch on confirmation candle does not count", func(t *testing.T) {
		s := withBands(bullish(), 200, 10)
		s[3].LowerBand = s[3].Low + 1
		sig, err := Detect(s)
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("upper touch does not confirm a bullish pattern", func(t *testing.T) {
		s := withBands(bullish(), 50, 10)
		sig, err := Detect(s)
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("bearish needs upper touch", func(t *testing.T) {
		s := withBands(series(
			bar(100, 110, 70, 0),
			bar(108, 105, 65, 0),
			bar(112, 115, 68, 0),
			bar(115, 108, 60, 0),
		), 500, 0)
		sig, err := Detect(s)
		require.NoError(t, err)
		assert.Nil(t, sig)

		s[2].UpperBand = s[2].High
		sig, err = Detect(s)
		require.NoError(t, err)
		require.NotNil(t, sig)
		assert.Equal(t, model.Bearish, sig.Direction)
		assert.True(t, sig.BandTouched)
	})
}

func TestDetect_MissingRSI(t *testing.T) {
	s := series(
		bar(100, 90, 30, 150),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100),
		bar(85, 95, 40, 100),
	)
	s[0].RSIReady = false
	sig, err := Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig, "warm-up RSI at Point A")

	s[0].RSIReady = true
	s[2].RSIReady = false
	sig, err = Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig, "warm-up RSI at Point B")

	s[2].RSIReady = true
	s[3].RSIReady = false
	sig, err = Detect(s)
	require.NoError(t, err)
	assert.Nil(t, sig, "warm-up RSI on the confirmation candle")
}

func TestDetect_Malformed(t *testing.T) {
	good := func() []model.Candle {
		return series(
			bar(100, 90, 30, 150),
			bar(92, 95, 35, 100),
			bar(88, 85, 32, 100),
			bar(85, 95, 40, 100),
		)
	}

	tests := []struct {
		name   string
		mutate func(s []model.Candle)
	}{
		{"duplicate timestamp", func(s []model.Candle) { s[2].TS = s[1].TS }},
		{"out of order", func(s []model.Candle) { s[1].TS = s[0].TS.Add(-time.Minute) }},
		{"high below close", func(s []model.Candle) { s[3].High = 90 }},
		{"low above open", func(s []model.Candle) { s[0].Low = 95 }},
		{"negative volume", func(s []model.Candle) { s[1].Volume = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good()
			tt.mutate(s)
			sig, err := Detect(s)
			assert.Nil(t, sig)
			assert.ErrorIs(t, err, ErrMalformedSeries)
		})
	}
}

func TestValidateCandle(t *testing.T) {
	require.NoError(t, ValidateCandle(bar(100, 90, 30, 150)))

	c := bar(100, 90, 30, 150)
	c.High = 95
	assert.ErrorIs(t, ValidateCandle(c), ErrMalformedSeries)

	c = bar(100, 90, 30, 150)
	c.Close = math.NaN()
	assert.ErrorIs(t, ValidateCandle(c), ErrMalformedSeries)

	c = bar(100, 90, 30, 150)
	c.Volume = -1
	assert.ErrorIs(t, ValidateCandle(c), ErrMalformedSeries)
}

func TestDetect_IdempotentAndReadOnly(t *testing.T) {
	s := withBands(series(
		bar(100, 90, 30, 150),
		bar(92, 95, 35, 100),
		bar(88, 85, 32, 100),
		bar(85, 95, 40, 100),
	), 200, 80)
	snapshot := append([]model.Candle(nil), s...)

	first, err := Detect(s)
	require.NoError(t, err)
	second, err := Detect(s)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, s)
}

func TestDetect_ConcurrentIndependentSeries(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := series(
				bar(100, 110, 70, 0),
				bar(108, 105, 65, 0),
				bar(112, 115, 68, 0),
				bar(115, 108, 60, 0),
			)
			sig, err := Detect(s)
			assert.NoError(t, err)
			if assert.NotNil(t, sig) {
				assert.Equal(t, model.Bearish, sig.Direction)
			}
		}()
	}
	wg.Wait()
}
