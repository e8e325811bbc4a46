package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultGateWindow = time.Hour

// ErrGateUnavailable wraps Redis failures of an AnomalyGate.
var ErrGateUnavailable = errors.New("anomaly gate unavailable")

// AnomalyGate de-duplicates anomaly notifications.
type AnomalyGate struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

// NewAnomalyGate returns a gate. A non-positive window selects one hour.
func NewAnomalyGate(redisClient redis.UniversalClient, prefix string, window time.Duration) *AnomalyGate {
	if prefix == "" {
		prefix = "gs"
	}
	if window <= 0 {
		window = defaultGateWindow
	}
	return &AnomalyGate{redis: redisClient, prefix: prefix, window: window}
}

func (g *AnomalyGate) key(subject, kind string) string {
	return g.prefix + ":anom:" + kind + ":" + subject
}

// Admit reports whether this is the first sighting of kind for subject in
// the current window.
func (g *AnomalyGate) Admit(ctx context.Context, subject, kind string) (bool, error) {
	if g == nil || g.redis == nil {
		return true, nil
	}
	key := g.key(subject, kind)

	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGateUnavailable, err)
	}
	if count == 1 {
		if err := g.redis.Expire(ctx, key, g.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrGateUnavailable, err)
		}
		return true, nil
	}
	return false, nil
}
