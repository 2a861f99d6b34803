// Package api serves read-only JSON views of the scanner state.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"rsi-divergence/internal/model"
)

// ScannerView is what the API reads from the scanner.
type ScannerView interface {
	Window() []model.Candle
	LastSignal() *model.SignalEvent
}

// NewRouter sets up the /api/v1 routes:
//
//	GET /api/v1/candles?limit=N  recent candles with indicators, oldest first
//	GET /api/v1/signal           last delivered signal event, 204 if none
func NewRouter(view ScannerView) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/candles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		candles := view.Window()
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			if n < len(candles) {
				candles = candles[len(candles)-n:]
			}
		}
		writeJSON(w, candles)
	})

	mux.HandleFunc("/api/v1/signal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ev := view.LastSignal()
		if ev == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, ev)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
