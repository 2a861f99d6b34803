package model

import (
	"fmt"
	"strings"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30). Exchange timestamps
// and bar-close schedules are expressed in it.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Instrument identifies the tradable instrument being scanned.
type Instrument struct {
	Token    string `json:"token"`    // broker symbol token, e.g. "99926000"
	Exchange string `json:"exchange"` // NSE, BSE, NFO
	Symbol   string `json:"symbol"`   // display name, e.g. "NIFTY 50"
}

// Key returns a unique key for this instrument: "exchange:token".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}

// Timeframe is a candle interval using Angel One SmartAPI interval names.
type Timeframe string

const (
	OneMinute     Timeframe = "ONE_MINUTE"
	ThreeMinute   Timeframe = "THREE_MINUTE"
	FiveMinute    Timeframe = "FIVE_MINUTE"
	TenMinute     Timeframe = "TEN_MINUTE"
	FifteenMinute Timeframe = "FIFTEEN_MINUTE"
	ThirtyMinute  Timeframe = "THIRTY_MINUTE"
	OneHour       Timeframe = "ONE_HOUR"
	OneDay        Timeframe = "ONE_DAY"
)

var timeframeDurations = map[Timeframe]time.Duration{
	OneMinute:     time.Minute,
	ThreeMinute:   3 * time.Minute,
	FiveMinute:    5 * time.Minute,
	TenMinute:     10 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	ThirtyMinute:  30 * time.Minute,
	OneHour:       time.Hour,
	OneDay:        24 * time.Hour,
}

var timeframeAliases = map[string]Timeframe{
	"1m":  OneMinute,
	"3m":  ThreeMinute,
	"5m":  FiveMinute,
	"10m": TenMinute,
	"15m": FifteenMinute,
	"30m": ThirtyMinute,
	"1h":  OneHour,
	"1d":  OneDay,
}

// ParseTimeframe accepts either an interval name ("FIVE_MINUTE") or a short
// form ("5m").
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if tf, ok := timeframeAliases[strings.ToLower(s)]; ok {
		return tf, nil
	}
	tf := Timeframe(strings.ToUpper(s))
	if _, ok := timeframeDurations[tf]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Duration returns the bar length. Zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Minutes returns the bar length in whole minutes.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}

// SessionClose is the NSE cash session close in IST, when a daily bar is final.
const (
	SessionCloseHour   = 15
	SessionCloseMinute = 30
)

// CloseTime returns when the bar starting at ts is final. Intraday bars close
// one interval after they open; a daily bar closes with the session.
func (tf Timeframe) CloseTime(ts time.Time) time.Time {
	if tf == OneDay {
		d := ts.In(IST)
		return time.Date(d.Year(), d.Month(), d.Day(), SessionCloseHour, SessionCloseMinute, 0, 0, IST)
	}
	return ts.Add(tf.Duration())
}

func (tf Timeframe) String() string { return string(tf) }
