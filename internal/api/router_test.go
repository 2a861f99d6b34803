package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-divergence/internal/model"
)

type fakeView struct {
	candles []model.Candle
	last    *model.SignalEvent
}

func (f *fakeView) Window() []model.Candle { return f.candles }
func (f *fakeView) LastSignal() *model.SignalEvent { return f.last }

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestCandles(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 9, 15, 0, 0, model.IST)
	view := &fakeView{}
	for i := 0; i < 5; i++ {
		view.candles = append(view.candles, model.Candle{TS: t0.Add(time.Duration(i) * 5 * time.Minute), Close: float64(100 + i)})
	}
	router := NewRouter(view)

	rec := get(t, router, "/api/v1/candles")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var all []model.Candle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 5)

	rec = get(t, router, "/api/v1/candles?limit=2")
	var tail []model.Candle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tail))
	require.Len(t, tail, 2)
	assert.Equal(t, 104.0, tail[1].Close)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/candles?limit=x").Code)
}

func TestSignal(t *testing.T) {
	view := &fakeView{}
	router := NewRouter(view)

	assert.Equal(t, http.StatusNoContent, get(t, router, "/api/v1/signal").Code)

	view.last = &model.SignalEvent{ID: "evt-1", Signal: model.Signal{Direction: model.Bearish, Distance: 5}}
	rec := get(t, router, "/api/v1/signal")
	require.Equal(t, http.StatusOK, rec.Code)
	var ev model.SignalEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, 5, ev.Signal.Distance)
}

func TestMethodNotAllowed(t *testing.T) {
	router := NewRouter(&fakeView{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/signal", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
