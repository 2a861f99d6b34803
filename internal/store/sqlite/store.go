// Package sqlite is the local candle cache. Bars fetched from the broker
// are upserted by (exchange, token, interval, ts) so a restart or a short
// outage only re-downloads the tail.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/model"
)

// Store wraps a single-writer SQLite database.
type Store struct {
	db *sqlx.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Open creates the database file if needed, enables WAL and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite mkdir")
		}
	}
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema")
	}

	log.Infof("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			exchange  TEXT    NOT NULL,
			token     TEXT    NOT NULL,
			interval  TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (exchange, token, interval, ts)
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type candleRow struct {
	Exchange string  `db:"exchange"`
	Token    string  `db:"token"`
	Interval string  `db:"interval"`
	TS       int64   `db:"ts"`
	Open     float64 `db:"open"`
	High     float64 `db:"high"`
	Low      float64 `db:"low"`
	Close    float64 `db:"close"`
	Volume   float64 `db:"volume"`
}

func (r candleRow) candle() model.Candle {
	return model.Candle{
		TS:   time.Unix(r.TS, 0).In(model.IST),
		Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
	}
}

const upsertCandle = `
	INSERT INTO candles (exchange, token, interval, ts, open, high, low, close, volume)
	VALUES (:exchange, :token, :interval, :ts, :open, :high, :low, :close, :volume)
	ON CONFLICT (exchange, token, interval, ts) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume
`

// UpsertCandles inserts or replaces candles in one transaction. A bar that
// was cached while still forming is overwritten by its final values.
func (s *Store) UpsertCandles(ctx context.Context, inst model.Instrument, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite begin")
	}
	stmt, err := tx.PrepareNamedContext(ctx, upsertCandle)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "sqlite prepare upsert")
	}
	defer stmt.Close()

	for _, c := range candles {
		row := candleRow{
			Exchange: inst.Exchange, Token: inst.Token, Interval: tf.String(), TS: c.TS.Unix(),
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "sqlite upsert candle %d", row.TS)
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite commit")
}

// LatestTS returns the newest cached bar time, or ok=false when none.
func (s *Store) LatestTS(ctx context.Context, inst model.Instrument, tf model.Timeframe) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.GetContext(ctx, &ts, `
		SELECT MAX(ts) FROM candles WHERE exchange = ? AND token = ? AND interval = ?
	`, inst.Exchange, inst.Token, tf.String())
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "sqlite latest ts")
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).In(model.IST), true, nil
}

// Candles returns cached bars in [from, to], ordered by timestamp ascending.
func (s *Store) Candles(ctx context.Context, inst model.Instrument, tf model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	var rows []candleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT exchange, token, interval, ts, open, high, low, close, volume
		FROM candles
		WHERE exchange = ? AND token = ? AND interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, inst.Exchange, inst.Token, tf.String(), from.Unix(), to.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query candles")
	}

	out := make([]model.Candle, len(rows))
	for i, r := range rows {
		out[i] = r.candle()
	}
	return out, nil
}

// Prune deletes bars older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, inst model.Instrument, tf model.Timeframe, before time.Time) (int64, error) {
	res, err := s.db.NamedExecContext(ctx, `
		DELETE FROM candles
		WHERE exchange = :exchange AND token = :token AND interval = :interval AND ts < :ts
	`, map[string]interface{}{
		"exchange": inst.Exchange,
		"token":    inst.Token,
		"interval": tf.String(),
		"ts":       before.Unix(),
	})
	if err != nil {
		return 0, errors.Wrap(err, "sqlite prune")
	}
	return res.RowsAffected()
}
