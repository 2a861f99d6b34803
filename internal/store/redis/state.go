package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	stateKeyPrefix  = "divergence:last_confirmation:"
	defaultStateTTL = 7 * 24 * time.Hour
)

// StateKey returns the state key for an instrument and timeframe:
// "divergence:last_confirmation:{exchange}:{token}:{tf}".
func StateKey(exchange, token, tf string) string {
	return stateKeyPrefix + exchange + ":" + token + ":" + tf
}

// StateStore keeps the last notified confirmation timestamp (unix ms).
type StateStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewStateStore creates a state store. ttl <= 0 uses seven days.
func NewStateStore(client goredis.UniversalClient, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateStore{client: client, ttl: ttl}
}

// LoadLastConfirmation returns the zero time when key is absent.
func (s *StateStore) LoadLastConfirmation(ctx context.Context, key string) (time.Time, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "redis get %s", key)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse %s", key)
	}
	return time.UnixMilli(ms), nil
}

func (s *StateStore) SaveLastConfirmation(ctx context.Context, key string, ts time.Time) error {
	if err := s.client.Set(ctx, key, ts.UnixMilli(), s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}
