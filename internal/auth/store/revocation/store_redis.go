package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for revoked tokens
	revokedTokenKeyPrefix = "trl:jti:"
)

// RedisTRL is a Redis-backed token revocation list. Instances of the task API
// share revocation state through it, and Redis expiry removes entries once
// the token would have expired anyway.
type RedisTRL struct {
	client    redis.UniversalClient
	latencyMs prometheus.Observer
}

// RedisTRLOption configures a RedisTRL instance.
type RedisTRLOption func(*RedisTRL)

// WithLatencyHistogram records IsRevoked latency in milliseconds.
func WithLatencyHistogram(h prometheus.Observer) RedisTRLOption {
	return func(t *RedisTRL) { t.latencyMs = h }
}

// NewRedisTRL constructs a Redis-backed token revocation list.
func NewRedisTRL(client redis.UniversalClient, opts ...RedisTRLOption) *RedisTRL {
	trl := &RedisTRL{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(trl)
		}
	}
	return trl
}

// RevokeToken marks jti revoked for ttl.
func (t *RedisTRL) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if err := t.client.Set(ctx, revokedTokenKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti is on the list. A missing key means the token
// was never revoked or has expired.
func (t *RedisTRL) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if t.latencyMs != nil {
		start := time.Now()
		defer func() {
			t.latencyMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}()
	}

	if jti == "" {
		return false, nil
	}
	_, err := t.client.Get(ctx, revokedTokenKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return true, nil
}
