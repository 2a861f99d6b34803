package scanner

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/model"
)

// sessionOpenMinute is the minute of the NSE 09:15 open. Intraday bars are
// aligned to it, so a 30-minute bar closes at :15 and :45.
const sessionOpenMinute = 15

// Schedule returns a cron spec (with a seconds field, evaluated in IST) that
// fires buffer after every bar close of tf.
func Schedule(tf model.Timeframe, buffer time.Duration) (string, error) {
	sec := int(buffer / time.Second)
	if sec < 0 || sec > 59 {
		return "", errors.Errorf("candle buffer %s out of range [0s, 59s]", buffer)
	}

	switch {
	case tf == model.OneDay:
		return fmt.Sprintf("%d %d %d * * *", sec, model.SessionCloseMinute, model.SessionCloseHour), nil
	case tf == model.OneHour:
		return fmt.Sprintf("%d %d * * * *", sec, sessionOpenMinute), nil
	}

	n := tf.Minutes()
	if n <= 0 || 60%n != 0 {
		return "", errors.Errorf("no schedule for timeframe %q", tf)
	}
	if n == 1 {
		return fmt.Sprintf("%d * * * * *", sec), nil
	}
	if off := sessionOpenMinute % n; off != 0 {
		return fmt.Sprintf("%d %d-59/%d * * * *", sec, off, n), nil
	}
	return fmt.Sprintf("%d */%d * * * *", sec, n), nil
}

// NewCron returns a scheduler in IST that skips a run while the previous
// one is still going.
func NewCron() *cron.Cron {
	logger := cron.PrintfLogger(log.WithField("component", "cron"))
	return cron.New(
		cron.WithSeconds(),
		cron.WithLocation(model.IST),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
}
