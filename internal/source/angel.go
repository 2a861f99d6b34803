// Package source supplies closed candles to the scanner: the Angel One
// SmartAPI feed, optionally fronted by a local SQLite cache.
package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/model"
	"rsi-divergence/pkg/smartconnect"
)

// SessionClient is the subset of the SmartAPI client the feed needs.
type SessionClient interface {
	GenerateSession(ctx context.Context, clientCode, password, totp string) (*smartconnect.Session, error)
	GetCandleData(ctx context.Context, req smartconnect.CandleRequest) ([]smartconnect.RawCandle, error)
	HasSession() bool
}

// AngelConfig holds login credentials and retry policy.
type AngelConfig struct {
	ClientID   string
	Password   string
	TOTPSecret string

	// Retries is the total number of fetch attempts per call.
	Retries int
	// RetryInterval is the first backoff delay; later delays grow from it.
	RetryInterval time.Duration
}

// Angel fetches historical candles from SmartAPI. It logs in lazily with a
// fresh TOTP and logs in again when the session token is rejected.
type Angel struct {
	client SessionClient
	cfg    AngelConfig

	loginMu sync.Mutex
	now     func() time.Time
}

// NewAngel creates the SmartAPI candle source.
func NewAngel(client SessionClient, cfg AngelConfig) *Angel {
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	return &Angel{client: client, cfg: cfg, now: time.Now}
}

// Login generates a TOTP and opens a new session.
func (a *Angel) Login(ctx context.Context) error {
	a.loginMu.Lock()
	defer a.loginMu.Unlock()

	code, err := totp.GenerateCode(a.cfg.TOTPSecret, a.now())
	if err != nil {
		return errors.Wrap(err, "generate totp")
	}
	if _, err := a.client.GenerateSession(ctx, a.cfg.ClientID, a.cfg.Password, code); err != nil {
		return errors.Wrap(err, "angel login")
	}
	log.WithFields(logger.Fields(ctx)).Info("[source] logged in to Angel One")
	return nil
}

// Fetch returns closed and forming candles in [From, To], ascending with
// duplicate timestamps removed.
func (a *Angel) Fetch(ctx context.Context, req model.FetchRequest) ([]model.Candle, error) {
	if !a.client.HasSession() {
		log.WithFields(logger.Fields(ctx)).Warn("[source] not logged in, attempting login")
		if err := a.Login(ctx); err != nil {
			return nil, err
		}
	}

	creq := smartconnect.CandleRequest{
		Exchange:    req.Instrument.Exchange,
		SymbolToken: req.Instrument.Token,
		Interval:    req.Timeframe.String(),
		From:        req.From,
		To:          req.To,
	}

	var rows []smartconnect.RawCandle
	attempt := 0
	op := func() error {
		attempt++
		var err error
		rows, err = a.client.GetCandleData(ctx, creq)
		if err == nil {
			return nil
		}
		entry := log.WithFields(logger.Fields(ctx)).WithError(err)
		entry.Warnf("[source] attempt %d/%d failed", attempt, a.cfg.Retries)

		if errors.Is(err, smartconnect.ErrTokenExpired) {
			entry.Info("[source] token issue detected, logging in again")
			if lerr := a.Login(ctx); lerr != nil {
				return lerr
			}
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.cfg.RetryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(a.cfg.Retries-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, errors.Wrapf(err, "fetch %s %s after %d attempts", req.Instrument.Key(), req.Timeframe, attempt)
	}

	candles := normalize(rows)
	log.WithFields(logger.Fields(ctx)).Debugf("[source] fetched %d candles from Angel One", len(candles))
	return candles, nil
}

// normalize converts rows to candles, sorts ascending and drops repeated
// timestamps, keeping the last row seen for each.
func normalize(rows []smartconnect.RawCandle) []model.Candle {
	out := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Candle{
			TS: r.TS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })

	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].TS.Equal(c.TS) {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// DropForming removes trailing bars that have not closed by now.
func DropForming(candles []model.Candle, tf model.Timeframe, now time.Time) []model.Candle {
	n := len(candles)
	for n > 0 && tf.CloseTime(candles[n-1].TS).After(now) {
		n--
	}
	return candles[:n]
}
