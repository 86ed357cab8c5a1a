package security

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted-set member per admitted request,
// scored by its time in milliseconds. It returns {allowed, remaining, retry_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count < limit then
  redis.call("ZADD", key, now, ARGV[4])
  redis.call("PEXPIRE", key, window)
  return {1, limit - count - 1, 0}
end

local retry = window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, 0, retry}
`)

// RedisSlidingWindow is a Limiter shared by every replica through Redis
type RedisSlidingWindow struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisSlidingWindow creates a Redis-backed limiter. Keys are stored
// under prefix.
func NewRedisSlidingWindow(rdb redis.Scripter, prefix string, limit int, window time.Duration) (*RedisSlidingWindow, error) {
	if err := checkRate(limit, window); err != nil {
		return nil, err
	}
	if window < time.Millisecond {
		return nil, errors.Wrapf(ErrInvalidRateLimit, "window %s is below redis millisecond resolution", window)
	}
	return &RedisSlidingWindow{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}, nil
}

// Allow records a request for key if the window has room. Redis errors are
// returned; callers reject the request rather than admit it unchecked.
func (l *RedisSlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{l.prefix + key},
		now, l.window.Milliseconds(), l.limit, member).Int64Slice()
	if err != nil {
		return Decision{}, errors.Wrap(err, "rate limit script failed")
	}
	if len(res) != 3 {
		return Decision{}, errors.Errorf("rate limit script returned %d values", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      l.limit,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
