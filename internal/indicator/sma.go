package indicator

import "rsi-divergence/internal/ringbuf"

// SMA calculates Simple Moving Average over a rolling window.
// The window is a preallocated ring so the hot path does not allocate.
type SMA struct {
	period  int
	window  *ringbuf.Window[float64]
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		window: ringbuf.New[float64](period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	if old, ok := s.window.Oldest(); ok && s.window.Full() {
		// Subtract the value about to be overwritten
		s.sum -= old
	}
	s.window.Push(price)
	s.sum += price

	if s.window.Full() {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.window.Full() }

// Window returns the prices currently averaged, oldest first.
func (s *SMA) Window() []float64 { return s.window.Slice() }

// Snapshot serializes the SMA state for checkpoint persistence.
func (s *SMA) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "SMA",
		Period:  s.period,
		Buf:     s.window.Slice(),
		Count:   s.window.Len(),
		Sum:     s.sum,
		Current: s.current,
	}
}

// RestoreFromSnapshot restores SMA state from a checkpoint.
func (s *SMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if err := snap.check("SMA", s.period); err != nil {
		return err
	}
	s.window.Reset()
	for _, v := range snap.Buf {
		s.window.Push(v)
	}
	s.sum = snap.Sum
	s.current = snap.Current
	return nil
}
