package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the scanner health served on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleAt     time.Time
	LastCycleResult string
	LastCandleTS    time.Time
	SourceOK        bool

	// nil when the dependency is not configured
	redisOK  *bool
	sqliteOK *bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		now:       time.Now,
	}
}

// RecordCycle stores the outcome of a scan cycle. A fetch error marks the
// source down; any other outcome marks it up.
func (h *HealthStatus) RecordCycle(result string, lastCandle time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastCycleAt = h.now()
	h.LastCycleResult = result
	h.SourceOK = result != ResultFetchError
	if !lastCandle.IsZero() {
		h.LastCandleTS = lastCandle
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.redisOK = &v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.sqliteOK = &v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb goredis.UniversalClient) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	ok := err == nil
	h.mu.Lock()
	h.redisOK = &ok
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the cache database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	ok := err == nil
	h.mu.Lock()
	h.sqliteOK = &ok
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// RunLivenessChecker probes the configured dependencies every interval until
// ctx is cancelled. Either of rdb and sqlDB may be nil.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, rdb goredis.UniversalClient, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

type healthResponse struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	LastCycleAt     string   `json:"last_cycle_at,omitempty"`
	LastCycleResult string   `json:"last_cycle_result,omitempty"`
	LastCandleTS    string   `json:"last_candle_ts,omitempty"`
	SourceOK        bool     `json:"source_ok"`
	RedisConnected  *bool    `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64  `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool    `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms,omitempty"`
	LastCheckAt     string   `json:"last_check_at,omitempty"`
	Problems        []string `json:"problems,omitempty"`
}

func formatTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ServeHTTP handles the /healthz endpoint. Before the first cycle the source
// is not judged.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var problems []string
	if !h.LastCycleAt.IsZero() && !h.SourceOK {
		problems = append(problems, "source")
	}
	if h.redisOK != nil && !*h.redisOK {
		problems = append(problems, "redis")
	}
	if h.sqliteOK != nil && !*h.sqliteOK {
		problems = append(problems, "sqlite")
	}

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if len(problems) > 0 {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := healthResponse{
		Status:          overallStatus,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		LastCycleAt:     formatTS(h.LastCycleAt),
		LastCycleResult: h.LastCycleResult,
		LastCandleTS:    formatTS(h.LastCandleTS),
		SourceOK:        h.SourceOK,
		RedisConnected:  h.redisOK,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.sqliteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     formatTS(h.LastCheckAt),
		Problems:        problems,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
