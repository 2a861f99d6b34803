package indicator

import "math"

// Bollinger computes SMA ± K·σ over a rolling window, σ being the population
// standard deviation of the closes in that window.
type Bollinger struct {
	k     float64
	sma   *SMA
	sigma float64
}

// NewBollinger creates a band indicator with the given period and multiplier.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{k: k, sma: NewSMA(period)}
}

func (b *Bollinger) Name() string { return "BOLL" }

func (b *Bollinger) Update(price float64) {
	b.sma.Update(price)
	if !b.sma.Ready() {
		return
	}

	mean := b.sma.Value()
	n := b.sma.window.Len()
	var ss float64
	for i := 0; i < n; i++ {
		d := b.sma.window.At(i) - mean
		ss += d * d
	}
	b.sigma = math.Sqrt(ss / float64(n))
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.sma.Value() }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

func (b *Bollinger) Upper() float64  { return b.sma.Value() + b.k*b.sigma }
func (b *Bollinger) Lower() float64  { return b.sma.Value() - b.k*b.sigma }
func (b *Bollinger) StdDev() float64 { return b.sigma }

// Snapshot serializes the band state. The window is the SMA's.
func (b *Bollinger) Snapshot() IndicatorSnapshot {
	snap := b.sma.Snapshot()
	snap.Type = "BOLL"
	snap.Multiplier = b.k
	snap.StdDev = b.sigma
	return snap
}

// RestoreFromSnapshot restores band state from a checkpoint.
func (b *Bollinger) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.check("BOLL", b.sma.period); err != nil {
		return err
	}
	inner := snap
	inner.Type = "SMA"
	if err := b.sma.RestoreFromSnapshot(inner); err != nil {
		return err
	}
	b.k = snap.Multiplier
	b.sigma = snap.StdDev
	return nil
}
