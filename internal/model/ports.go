package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// The divergence detector depends on none of these; they decouple the scan
// loop from concrete brokers, caches, and delivery channels.

// FetchRequest describes a historical candle query.
type FetchRequest struct {
	Instrument Instrument
	Timeframe  Timeframe
	From       time.Time
	To         time.Time
}

// CandleSource supplies closed candles on demand.
type CandleSource interface {
	// Fetch returns candles in [From, To], ascending by TS with no duplicate
	// timestamps. An error means no series is available for this cycle.
	Fetch(ctx context.Context, req FetchRequest) ([]Candle, error)
}

// Notifier delivers a finished signal. A nil error means success.
type Notifier interface {
	Notify(ctx context.Context, ev SignalEvent) error
}

// StateStore persists the last notified confirmation timestamp so a
// restart does not repeat an alert.
type StateStore interface {
	// LoadLastConfirmation returns the zero time if nothing is stored.
	LoadLastConfirmation(ctx context.Context, key string) (time.Time, error)

	SaveLastConfirmation(ctx context.Context, key string, ts time.Time) error
}
