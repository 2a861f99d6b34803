package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Direction is the expected reversal direction of a divergence.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// Color patterns reported with a signal (Point A, Point B, confirmation).
const (
	PatternBullish = "Red-Red-Green"
	PatternBearish = "Green-Green-Red"
)

// Pivot is one end of the compared pair.
type Pivot struct {
	TS    time.Time `json:"ts"`
	Close float64   `json:"close"`
	RSI   float64   `json:"rsi"`
}

// Confirmation is the reversal candle that follows Point B.
type Confirmation struct {
	TS    time.Time `json:"ts"`
	Close float64   `json:"close"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
}

// Signal is a completed divergence pattern. Built fresh on every match and
// never mutated afterwards.
type Signal struct {
	Direction    Direction    `json:"direction"`
	Distance     int          `json:"distance"` // candles from A to B inclusive
	Pattern      string       `json:"pattern"`
	PointA       Pivot        `json:"point_a"`
	PointB       Pivot        `json:"point_b"`
	Confirmation Confirmation `json:"confirmation"`
	BandTouched  bool         `json:"band_touched"`
}

// Strength is the human label used in alerts, e.g. "3 candles".
func (s *Signal) Strength() string {
	return strconv.Itoa(s.Distance) + " candles"
}

// SignalEvent is a Signal with the context a notifier needs to deliver it.
type SignalEvent struct {
	ID         string     `json:"id"`
	Instrument Instrument `json:"instrument"`
	Timeframe  Timeframe  `json:"timeframe"`
	DetectedAt time.Time  `json:"detected_at"`
	Signal     Signal     `json:"signal"`
}

// Channel returns the pub/sub channel name: "signal:divergence:{exchange}:{token}".
func (e *SignalEvent) Channel() string {
	return "signal:divergence:" + e.Instrument.Exchange + ":" + e.Instrument.Token
}

// JSON returns the JSON-encoded event.
func (e *SignalEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
