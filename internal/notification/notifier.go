// Package notification delivers finished divergence signals to external
// channels (Telegram, Slack, webhooks, the log).
package notification

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/model"
)

// Named is a notifier with a stable name used in logs and metric labels.
type Named interface {
	model.Notifier
	Name() string
}

// LogNotifier writes each signal as a structured log entry. It never fails.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, ev model.SignalEvent) error {
	s := ev.Signal
	log.WithFields(logger.Fields(ctx)).WithFields(log.Fields{
		"event_id":  ev.ID,
		"symbol":    ev.Instrument.Symbol,
		"timeframe": ev.Timeframe,
		"direction": s.Direction,
		"distance":  s.Distance,
		"pattern":   s.Pattern,
		"point_a":   s.PointA.TS.In(model.IST).Format("2006-01-02 15:04:05"),
		"point_b":   s.PointB.TS.In(model.IST).Format("2006-01-02 15:04:05"),
		"confirmed": s.Confirmation.TS.In(model.IST).Format("2006-01-02 15:04:05"),
		"band":      s.BandTouched,
	}).Infof("[SIGNAL] %s DIVERGENCE DETECTED | price %.2f -> %.2f | RSI %.2f -> %.2f",
		s.Direction, s.PointA.Close, s.PointB.Close, s.PointA.RSI, s.PointB.RSI)
	return nil
}

// Multi delivers every signal to all its notifiers. One failing channel does
// not stop the others; the failures are combined into the returned error.
type Multi struct {
	notifiers []Named

	// OnFailure is called once per failed delivery, e.g. to count it.
	OnFailure func(name string, err error)
}

// NewMulti fans out to notifiers in order.
func NewMulti(notifiers ...Named) *Multi {
	return &Multi{notifiers: notifiers}
}

// Add appends a notifier.
func (m *Multi) Add(n Named) { m.notifiers = append(m.notifiers, n) }

// Len returns the number of notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Notify(ctx context.Context, ev model.SignalEvent) error {
	var errs error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			log.WithFields(logger.Fields(ctx)).WithError(err).
				WithField("notifier", n.Name()).
				Error("[notify] delivery failed")
			if m.OnFailure != nil {
				m.OnFailure(n.Name(), err)
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
