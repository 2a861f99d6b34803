package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-divergence/internal/model"
)

type wsEnvelope struct {
	Channel string            `json:"channel"`
	Data    model.SignalEvent `json:"data"`
	TS      time.Time         `json:"ts"`
	Seq     int64             `json:"seq"`
}

func event(id string) model.SignalEvent {
	return model.SignalEvent{
		ID:         id,
		Instrument: model.Instrument{Token: "99926000", Exchange: "NSE", Symbol: "NIFTY 50"},
		Timeframe:  model.FiveMinute,
		DetectedAt: time.Date(2024, 1, 15, 10, 25, 0, 0, model.IST),
		Signal:     model.Signal{Direction: model.Bullish, Distance: 3},
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	c1 := dial(t, srv, "")
	c2 := dial(t, srv, "")
	waitClients(t, hub, 2)

	require.NoError(t, hub.Notify(context.Background(), event("a")))

	for _, c := range []*websocket.Conn{c1, c2} {
		env := read(t, c)
		assert.Equal(t, "signal:divergence:NSE:99926000", env.Channel)
		assert.Equal(t, "a", env.Data.ID)
		assert.Equal(t, int64(1), env.Seq)
	}
}

func TestHub_NewClientGetsLatest(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx := context.Background()
	require.NoError(t, hub.Notify(ctx, event("a")))
	require.NoError(t, hub.Notify(ctx, event("b")))

	env := read(t, dial(t, srv, ""))
	assert.Equal(t, "b", env.Data.ID)
	assert.Equal(t, int64(2), env.Seq)
}

func TestHub_ReplaySince(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, hub.Notify(ctx, event(id)))
	}
	require.Equal(t, int64(4), hub.Seq())

	conn := dial(t, srv, "?since=2")
	assert.Equal(t, "c", read(t, conn).Data.ID)
	assert.Equal(t, "d", read(t, conn).Data.ID)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)

	assert.NoError(t, hub.Notify(context.Background(), event("after")))
}

func TestHub_Pong(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":7}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(msg, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, int64(7), pong.Ping)
}

func TestEnvelope(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 25, 0, 0, model.IST)
	buf := envelope("signal:divergence:NSE:1", []byte(`{"id":"x"}`), ts, 42)

	var env struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
		TS      string          `json:"ts"`
		Seq     int64           `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(buf, &env))
	assert.Equal(t, "signal:divergence:NSE:1", env.Channel)
	assert.JSONEq(t, `{"id":"x"}`, string(env.Data))
	assert.Equal(t, "2024-01-15T04:55:00Z", env.TS)
	assert.Equal(t, int64(42), env.Seq)
}
