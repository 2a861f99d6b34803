package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-divergence/internal/model"
)

func randomSeries(rng *rand.Rand, n int) []model.Candle {
	out := make([]model.Candle, n)
	ts := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	price := 18000 + rng.Float64()*6000
	for i := range out {
		open := price
		// occasional flat bars and large gaps
		switch rng.Intn(10) {
		case 0:
			price = open
		case 1:
			price = open * (1 + (rng.Float64()-0.5)*0.05)
		default:
			price = open * (1 + (rng.Float64()-0.5)*0.004)
		}
		hi := math.Max(open, price) + rng.Float64()*15
		lo := math.Min(open, price) - rng.Float64()*15
		out[i] = model.Candle{
			TS: ts.Add(time.Duration(i) * 5 * time.Minute), Open: open, High: hi, Low: lo, Close: price,
			Volume: float64(rng.Intn(3) * rng.Intn(100000)),
		}
	}
	return out
}

func within(t *testing.T, label string, got, want float64) {
	t.Helper()
	tol := 1e-9 * math.Max(1, math.Abs(want))
	assert.InDelta(t, want, got, tol, label)
}

// The incremental stream and batch recomputation must agree on every candle
// for arbitrary series and parameters.
func TestStream_AgreesWithAttach(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		cfg := Config{
			RSIPeriod: 1 + rng.Intn(30),
			BBPeriod:  1 + rng.Intn(40),
			BBStdDev:  0.5 + rng.Float64()*2.5,
		}
		series := randomSeries(rng, rng.Intn(400))

		batch := Attach(series, cfg)
		s := NewStream(cfg)
		for i, c := range series {
			got := s.Next(c)
			want := batch[i]

			require.Equal(t, want.RSIReady, got.RSIReady, "trial %d idx %d rsi ready (%+v)", trial, i, cfg)
			require.Equal(t, want.BandsReady, got.BandsReady, "trial %d idx %d bands ready (%+v)", trial, i, cfg)
			if got.RSIReady {
				within(t, "rsi", got.RSI, want.RSI)
			}
			if got.BandsReady {
				within(t, "upper", got.UpperBand, want.UpperBand)
				within(t, "lower", got.LowerBand, want.LowerBand)
			}
		}
		assert.Equal(t, len(series), s.Fed())
	}
}

func TestAttach_DoesNotMutateInput(t *testing.T) {
	series := randomSeries(rand.New(rand.NewSource(7)), 60)
	before := append([]model.Candle(nil), series...)

	out := Attach(series, DefaultConfig())

	assert.Equal(t, before, series)
	require.Len(t, out, len(series))
	assert.True(t, out[59].RSIReady)
	assert.True(t, out[59].BandsReady)
	assert.False(t, out[13].RSIReady, "RSI(14) needs 15 closes")
	assert.True(t, out[14].RSIReady)
	assert.False(t, out[18].BandsReady, "BOLL(20) needs 20 closes")
	assert.True(t, out[19].BandsReady)
}

func TestStream_NextPreservesCandle(t *testing.T) {
	c := model.Candle{
		TS: time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC), Open: 10, High: 12, Low: 9, Close: 11, Volume: 5,
		RSI: 99, RSIReady: true, UpperBand: 1, LowerBand: 1, BandsReady: true,
	}
	got := NewStream(DefaultConfig()).Next(c)

	assert.Equal(t, c.TS, got.TS)
	assert.Equal(t, c.Close, got.Close)
	assert.Equal(t, c.Volume, got.Volume)
	assert.False(t, got.RSIReady, "stale indicator fields are cleared")
	assert.False(t, got.BandsReady)
	assert.Zero(t, got.RSI)
}

func TestStream_SnapshotRestore(t *testing.T) {
	cfg := DefaultConfig()
	series := randomSeries(rand.New(rand.NewSource(11)), 120)

	s := NewStream(cfg)
	for _, c := range series[:80] {
		s.Next(c)
	}
	snap := s.Snapshot()

	// Round-trip through JSON like a persisted checkpoint.
	raw, err := snap.MarshalJSON()
	require.NoError(t, err)
	var decoded StreamSnapshot
	require.NoError(t, decoded.UnmarshalJSON(raw))

	restored := NewStream(cfg)
	require.NoError(t, restored.Restore(&decoded))
	assert.Equal(t, s.LastTS().UTC(), restored.LastTS().UTC())
	assert.Equal(t, 80, restored.Fed())

	for _, c := range series[80:] {
		a, b := s.Next(c), restored.Next(c)
		within(t, "rsi", b.RSI, a.RSI)
		within(t, "upper", b.UpperBand, a.UpperBand)
		within(t, "lower", b.LowerBand, a.LowerBand)
	}
}

func TestStream_RestoreRollsBack(t *testing.T) {
	cfg := DefaultConfig()
	series := randomSeries(rand.New(rand.NewSource(3)), 50)

	s := NewStream(cfg)
	for _, c := range series[:40] {
		s.Next(c)
	}
	snap := s.Snapshot()
	want := s.Next(series[40])

	// Feed something else, then roll back and replay.
	for _, c := range series[41:] {
		s.Next(c)
	}
	require.NoError(t, s.Restore(snap))
	got := s.Next(series[40])

	assert.Equal(t, want, got)
}

func TestStream_RestoreRejectsMismatch(t *testing.T) {
	snap := NewStream(DefaultConfig()).Snapshot()

	other := NewStream(Config{RSIPeriod: 7, BBPeriod: 20, BBStdDev: 2})
	assert.Error(t, other.Restore(snap))
	assert.Error(t, other.Restore(nil))

	var bad StreamSnapshot
	assert.Error(t, bad.UnmarshalJSON([]byte(`{"version":99}`)))
}

func TestStream_Reset(t *testing.T) {
	s := NewStream(DefaultConfig())
	for _, c := range randomSeries(rand.New(rand.NewSource(5)), 30) {
		s.Next(c)
	}
	s.Reset()

	assert.Zero(t, s.Fed())
	assert.True(t, s.LastTS().IsZero())
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{RSIPeriod: 0, BBPeriod: 20, BBStdDev: 2}.Validate())
	assert.Error(t, Config{RSIPeriod: 14, BBPeriod: -1, BBStdDev: 2}.Validate())
	assert.Error(t, Config{RSIPeriod: 14, BBPeriod: 20, BBStdDev: 0}.Validate())
}
