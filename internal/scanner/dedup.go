package scanner

import (
	"time"

	"rsi-divergence/internal/model"
)

// DedupState remembers the confirmation candle of the last notified signal.
type DedupState struct {
	LastConfirmation time.Time
}

// Admit reports whether sig is new and returns the state to keep. A signal
// whose confirmation is not after LastConfirmation is a repeat; the state is
// then returned unchanged.
func (d DedupState) Admit(sig *model.Signal) (DedupState, bool) {
	if sig == nil {
		return d, false
	}
	ts := sig.Confirmation.TS
	if !d.LastConfirmation.IsZero() && !ts.After(d.LastConfirmation) {
		return d, false
	}
	return DedupState{LastConfirmation: ts}, true
}
