// Package indicator computes the oscillator and volatility bands the
// divergence detector reads from each candle.
//
// Two providers are offered. Stream is incremental: it keeps O(1)/O(period)
// rolling state and attaches values to one closed candle at a time. Attach
// recomputes a whole series from scratch with an independent array-based
// implementation. Both produce the same values for the same input.
package indicator

import "github.com/pkg/errors"

// Indicator is a rolling calculation fed one closing price at a time.
type Indicator interface {
	// Name returns the indicator name (e.g., "RSI", "BOLL").
	Name() string

	// Update feeds a new close price (rupees) and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Config holds indicator parameters.
type Config struct {
	RSIPeriod int     `json:"rsi_period"`
	BBPeriod  int     `json:"bb_period"`
	BBStdDev  float64 `json:"bb_std_dev"`
}

// DefaultConfig matches the usual 14-period RSI and 20/2 Bollinger bands.
func DefaultConfig() Config {
	return Config{RSIPeriod: 14, BBPeriod: 20, BBStdDev: 2.0}
}

// Validate rejects parameters no indicator can run with.
func (c Config) Validate() error {
	if c.RSIPeriod < 1 {
		return errors.Errorf("rsi period must be positive, got %d", c.RSIPeriod)
	}
	if c.BBPeriod < 1 {
		return errors.Errorf("bollinger period must be positive, got %d", c.BBPeriod)
	}
	if c.BBStdDev <= 0 {
		return errors.Errorf("bollinger std dev multiplier must be positive, got %v", c.BBStdDev)
	}
	return nil
}
