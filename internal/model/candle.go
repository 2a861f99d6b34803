package model

import (
	"encoding/json"
	"time"
)

// Color is the body color of a candle on a closing basis.
type Color int

const (
	Doji  Color = iota // close == open
	Green              // close > open
	Red                // close < open
)

func (c Color) String() string {
	switch c {
	case Green:
		return "Green"
	case Red:
		return "Red"
	default:
		return "Doji"
	}
}

// Candle is one closed OHLCV bar with the indicator overlay attached.
// Prices are in rupees. A zero Volume means the feed has no volume for the
// instrument (index tokens such as NIFTY 50).
type Candle struct {
	TS     time.Time `json:"ts"` // bar start time
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	// Momentum oscillator (RSI). RSIReady is false during warm-up.
	RSI      float64 `json:"rsi"`
	RSIReady bool    `json:"rsi_ready"`

	// Volatility envelope (Bollinger). BandsReady is false during warm-up
	// or when no band data was attached.
	UpperBand  float64 `json:"upper_band"`
	LowerBand  float64 `json:"lower_band"`
	BandsReady bool    `json:"bands_ready"`
}

// Color classifies the candle body.
func (c *Candle) Color() Color {
	switch {
	case c.Close > c.Open:
		return Green
	case c.Close < c.Open:
		return Red
	default:
		return Doji
	}
}

// TouchesUpper reports whether the bar reached the upper band.
// Always false when no band data is attached.
func (c *Candle) TouchesUpper() bool {
	return c.BandsReady && c.High >= c.UpperBand
}

// TouchesLower reports whether the bar reached the lower band.
// Always false when no band data is attached.
func (c *Candle) TouchesLower() bool {
	return c.BandsReady && c.Low <= c.LowerBand
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
