package gateway

import (
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// envelope builds {"channel":"...","data":...,"ts":"...","seq":N} by hand;
// data is already JSON.
func envelope(channel string, data []byte, ts time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

func (h *Hub) broadcast(channel string, data []byte, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	buf := envelope(channel, data, ts, h.seq)
	h.latest = buf
	h.replay.Push(h.seq, buf)

	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
			log.Warn("[gateway] client send buffer full, dropping signal")
		}
	}
}
