package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	blockPrefix     = "wemake:block:"
	violationPrefix = "wemake:violations:"

	violationWindow    = time.Hour
	violationThreshold = 10
	autoBlockDuration  = 24 * time.Hour
)

// Blocker keeps temporary IP blocks in Redis.
type Blocker struct {
	client *redis.Client
}

// NewBlocker creates a Blocker.
func NewBlocker(client *redis.Client) *Blocker {
	return &Blocker{client: client}
}

// IsBlocked reports whether ip is blocked. Lookup failures count as not blocked.
func (b *Blocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockPrefix+ip).Result()
	return err == nil && n > 0
}

// Block blocks ip for d.
func (b *Blocker) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	return b.client.Set(ctx, blockPrefix+ip, reason, d).Err()
}

// Unblock lifts a block early.
func (b *Blocker) Unblock(ctx context.Context, ip string) error {
	return b.client.Del(ctx, blockPrefix+ip).Err()
}

// RecordViolation counts a rate limit violation for ip and blocks it once
// the count within the violation window reaches the threshold.
func (b *Blocker) RecordViolation(ctx context.Context, ip string, logger zerolog.Logger) {
	key := violationPrefix + ip

	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, violationWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn().Err(err).Str("ip", ip).Msg("violation tracking failed")
		return
	}
	if incr.Val() < violationThreshold {
		return
	}

	if err := b.Block(ctx, ip, autoBlockDuration, "repeated rate limit violations"); err != nil {
		logger.Warn().Err(err).Str("ip", ip).Msg("auto-block failed")
		return
	}
	logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", incr.Val()).
		Msg("IP auto-blocked for repeated violations")
}
