package security

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// ErrInvalidRateLimit is returned for a limit below one or a non-positive window
var ErrInvalidRateLimit = errors.New("rate limit must allow at least one request per positive window")

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most a fixed number of requests per key in any window
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func checkRate(limit int, window time.Duration) error {
	if limit < 1 || window <= 0 {
		return errors.Wrapf(ErrInvalidRateLimit, "got %d per %s", limit, window)
	}
	return nil
}

// SlidingWindowLimiter is an in-process Limiter. Each key keeps the times
// of its admitted requests inside the trailing window.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration
	keys   *cache.Cache
	mu     sync.Mutex
	now    func() time.Time
}

// NewSlidingWindowLimiter creates a limiter allowing limit requests per window
func NewSlidingWindowLimiter(limit int, window time.Duration) (*SlidingWindowLimiter, error) {
	if err := checkRate(limit, window); err != nil {
		return nil, err
	}
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		keys:   cache.New(window, 2*window),
		now:    time.Now,
	}, nil
}

// Allow records a request for key if the window has room
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (Decision, error) {
	// The read, prune and write-back of a key's log happen under one lock so
	// a janitor eviction in between cannot split the log in two.
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var times []time.Time
	if v, ok := l.keys.Get(key); ok {
		times = v.([]time.Time)
	}

	cutoff := now.Add(-l.window)
	kept := make([]time.Time, 0, len(times)+1)
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.keys.SetDefault(key, kept)
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}, nil
	}

	kept = append(kept, now)
	l.keys.SetDefault(key, kept)
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - len(kept)}, nil
}
