package gateway

import "rsi-divergence/internal/ringbuf"

// replayEntry holds a single broadcast envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes for clients reconnecting with
// ?since=<seq>. Not safe for concurrent use; the Hub guards it.
type ReplayBuffer struct {
	win *ringbuf.Window[replayEntry]
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = defaultReplay
	}
	return &ReplayBuffer{win: ringbuf.New[replayEntry](capacity)}
}

// Push appends an envelope, evicting the oldest when full. Seqs must be
// pushed in increasing order.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.win.Push(replayEntry{Seq: seq, Data: data})
}

// Range returns entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	var out []replayEntry
	for i := 0; i < rb.win.Len(); i++ {
		e := rb.win.At(i)
		if e.Seq > toSeq {
			break
		}
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int { return rb.win.Len() }
