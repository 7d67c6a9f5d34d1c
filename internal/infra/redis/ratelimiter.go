package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
	"github.com/kursadbilgin/notify-gateway/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	backoffStep = 10 * time.Millisecond
	backoffMax  = 100 * time.Millisecond
)

// reserveScript trims a sorted-set sliding window, then reserves a slot if
// the window still has capacity. Returns {allowed, remaining, oldestScore}.
var reserveScript = goredis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)
local count = redis.call("ZCARD", KEYS[1])
local limit = tonumber(ARGV[3])
if count < limit then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  return {1, limit - count - 1, oldest[2]}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {0, 0, oldest[2]}
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed sliding-window limiter keyed by provider
// type. When Redis itself fails the limiter fails open: throttling protects
// provider quotas, it must never become the reason deliveries stop.
type RedisRateLimiter struct {
	client *goredis.Client
	logger *zap.Logger
	limits func(domain.ProviderType) ratelimit.Limit
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	script *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, logger *zap.Logger) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, logger, ratelimit.LimitFor, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	logger *zap.Logger,
	limitsFn func(domain.ProviderType) ratelimit.Limit,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limitsFn == nil {
		limitsFn = ratelimit.LimitFor
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		logger: logger,
		limits: limitsFn,
		now:    nowFn,
		sleep:  sleepFn,
		script: reserveScript,
	}, nil
}

func (r *RedisRateLimiter) CheckAndReserve(ctx context.Context, providerType domain.ProviderType) (ratelimit.Decision, error) {
	if r == nil || r.client == nil || r.script == nil {
		return ratelimit.Decision{}, fmt.Errorf("rate limiter is not initialized")
	}
	if !providerType.IsValid() {
		return ratelimit.Decision{}, fmt.Errorf("%w: invalid provider type %q", domain.ErrValidation, providerType)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := r.limits(providerType)
	now := r.now()
	key := fmt.Sprintf("ratelimit:%s", providerType)

	raw, err := r.script.Run(ctx, r.client,
		[]string{key},
		now.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.Requests,
		uuid.NewString(),
	).Slice()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ratelimit.Decision{}, err
		}
		r.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("providerType", providerType.String()),
			zap.Error(err),
		)
		return ratelimit.Decision{Allowed: true, Remaining: limit.Requests, ResetAt: now}, nil
	}

	decision, err := parseDecision(raw, limit, now)
	if err != nil {
		r.logger.Warn("rate limiter returned malformed reply, allowing request",
			zap.String("providerType", providerType.String()),
			zap.Error(err),
		)
		return ratelimit.Decision{Allowed: true, Remaining: limit.Requests, ResetAt: now}, nil
	}

	return decision, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, providerType domain.ProviderType) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		decision, err := r.CheckAndReserve(ctx, providerType)
		if err != nil {
			return err
		}
		if decision.Allowed {
			return nil
		}

		pause := backoff
		if wait := decision.ResetAt.Sub(r.now()); wait > 0 && wait < pause {
			pause = wait
		}
		if err := r.sleep(ctx, pause); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func parseDecision(raw []interface{}, limit ratelimit.Limit, now time.Time) (ratelimit.Decision, error) {
	if len(raw) < 2 {
		return ratelimit.Decision{}, fmt.Errorf("reply has %d elements", len(raw))
	}

	allowed, ok := raw[0].(int64)
	if !ok {
		return ratelimit.Decision{}, fmt.Errorf("allowed flag is %T", raw[0])
	}
	remaining, ok := raw[1].(int64)
	if !ok {
		return ratelimit.Decision{}, fmt.Errorf("remaining count is %T", raw[1])
	}

	resetAt := now.Add(limit.Window)
	if len(raw) > 2 && raw[2] != nil {
		if s, ok := raw[2].(string); ok {
			if oldest, err := strconv.ParseFloat(s, 64); err == nil {
				resetAt = time.UnixMilli(int64(oldest)).Add(limit.Window)
			}
		}
	}

	return ratelimit.Decision{
		Allowed:   allowed == 1,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
