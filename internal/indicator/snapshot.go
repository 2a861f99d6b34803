package indicator

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// snapshotVersion is bumped when the persisted layout changes.
const snapshotVersion = 1

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Indicator
	Snapshot() IndicatorSnapshot
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// IndicatorSnapshot holds the serialized state of a single indicator instance.
type IndicatorSnapshot struct {
	Type   string `json:"type"`   // "SMA", "BOLL", "RSI"
	Period int    `json:"period"` // indicator period

	// SMA / BOLL fields
	Buf     []float64 `json:"buf,omitempty"`
	Count   int       `json:"count"`
	Sum     float64   `json:"sum,omitempty"`
	Current float64   `json:"current"`

	// BOLL fields
	Multiplier float64 `json:"multiplier,omitempty"`
	StdDev     float64 `json:"std_dev,omitempty"`

	// RSI fields
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`
}

func (s IndicatorSnapshot) check(typ string, period int) error {
	if s.Type != typ {
		return errors.Errorf("snapshot type %q, want %q", s.Type, typ)
	}
	if s.Period != period {
		return errors.Errorf("%s snapshot period %d, want %d", typ, s.Period, period)
	}
	return nil
}

// StreamSnapshot holds the full state of a Stream.
type StreamSnapshot struct {
	Version   int               `json:"version"` // schema version for forward compat
	Config    Config            `json:"config"`
	LastTS    time.Time         `json:"last_ts"`
	Fed       int               `json:"fed"`
	RSI       IndicatorSnapshot `json:"rsi"`
	Bollinger IndicatorSnapshot `json:"bollinger"`
}

// MarshalJSON serializes the stream snapshot to JSON.
func (ss *StreamSnapshot) MarshalJSON() ([]byte, error) {
	type Alias StreamSnapshot
	return json.Marshal((*Alias)(ss))
}

// UnmarshalJSON deserializes the stream snapshot from JSON and checks its
// schema version.
func (ss *StreamSnapshot) UnmarshalJSON(data []byte) error {
	type Alias StreamSnapshot
	if err := json.Unmarshal(data, (*Alias)(ss)); err != nil {
		return err
	}
	if ss.Version != snapshotVersion {
		return errors.Errorf("unsupported stream snapshot version %d", ss.Version)
	}
	return nil
}
