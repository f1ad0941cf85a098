package middleware

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/metrics"
)

const rateLimitPrefix = "wemake:rl:"

// KeyFunc picks the bucket a request is counted in.
type KeyFunc func(r *http.Request) string

// Rule limits requests whose method matches and whose path starts with Prefix.
type Rule struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	Key      KeyFunc
}

// DefaultRules are the limits applied to the public API.
var DefaultRules = []Rule{
	{http.MethodPost, "/auth/join", 10, time.Hour, ipKey},
	{http.MethodGet, "/users/", 100, time.Minute, userOrIPKey},
	{http.MethodPost, "/users/", 30, time.Minute, userKey},
	{http.MethodGet, "/my/messages", 120, time.Minute, userKey},
	{http.MethodPost, "/my/messages/", 60, time.Minute, userKey},
	{http.MethodGet, "/my/notifications", 120, time.Minute, userKey},
	{http.MethodPost, "/my/notifications/", 60, time.Minute, userKey},
	{http.MethodPost, "/my/settings", 20, time.Minute, userKey},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Block IPs after repeated violations
	Rules            []Rule   // defaults to DefaultRules
}

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per fixed window in Redis.
type RateLimiter struct {
	client    *redis.Client
	rules     []Rule
	blocker   *Blocker
	whitelist ipList
	autoBlock bool
	logger    zerolog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules
	}
	rules = append([]Rule(nil), rules...)
	// Longest prefix first so the most specific rule wins.
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})

	rl := &RateLimiter{
		client:    client,
		rules:     rules,
		blocker:   NewBlocker(client),
		whitelist: parseIPList(cfg.Whitelist, logger),
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
	}

	if !rl.whitelist.empty() {
		logger.Info().
			Int("entries", len(cfg.Whitelist)).
			Msg("rate limit whitelist loaded")
	}
	return rl
}

// match returns the rule for r, or nil when r is not limited.
func (rl *RateLimiter) match(r *http.Request) *Rule {
	for i := range rl.rules {
		rule := &rl.rules[i]
		if rule.Method == r.Method && strings.HasPrefix(r.URL.Path, rule.Prefix) {
			return rule
		}
	}
	return nil
}

// Allow counts one request against key. Redis failures let the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	now := time.Now()
	bucket := now.Truncate(window)
	resetAt := bucket.Add(window)
	windowKey := rateLimitPrefix + key + ":" + strconv.FormatInt(bucket.Unix(), 10)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.ExpireAt(ctx, windowKey, resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: resetAt}
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.whitelist.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_block").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule := rl.match(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := rule.Key(r)
		d := rl.Allow(r.Context(), key, rule.Requests, rule.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(d.ResetAt).Seconds())+1))
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("key", key).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			if rl.autoBlock {
				rl.blocker.RecordViolation(r.Context(), ip, rl.logger)
			}

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ipKey buckets by client IP.
func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// userKey buckets by the session user. Routes using it sit behind
// RequireAuth, but anonymous requests still fall back to the IP.
func userKey(r *http.Request) string {
	if id, ok := GetUserIDFromContext(r.Context()); ok {
		return "user:" + id.String()
	}
	return ipKey(r)
}

// userOrIPKey separates anonymous browsing from signed-in browsing.
func userOrIPKey(r *http.Request) string {
	if id, ok := GetUserIDFromContext(r.Context()); ok {
		return "browse:user:" + id.String()
	}
	return "browse:" + ipKey(r)
}
