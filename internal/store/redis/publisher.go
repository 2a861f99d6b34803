package redis

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/logger"
	"rsi-divergence/internal/model"
)

// SignalPublisher publishes each signal event as JSON on
// "signal:divergence:{exchange}:{token}".
type SignalPublisher struct {
	client goredis.UniversalClient
}

// NewSignalPublisher creates a publisher on client.
func NewSignalPublisher(client goredis.UniversalClient) *SignalPublisher {
	return &SignalPublisher{client: client}
}

func (p *SignalPublisher) Name() string { return "redis" }

func (p *SignalPublisher) Notify(ctx context.Context, ev model.SignalEvent) error {
	ch := ev.Channel()
	n, err := p.client.Publish(ctx, ch, ev.JSON()).Result()
	if err != nil {
		return errors.Wrapf(err, "redis publish %s", ch)
	}
	log.WithFields(logger.Fields(ctx)).Debugf("[redis] published %s to %s (%d subscribers)", ev.ID, ch, n)
	return nil
}
