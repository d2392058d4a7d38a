package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ticketing/internal/clock"
)

// The window starts with the first hit; later hits never extend it.
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

var ErrInvalidWindow = errors.New("invalid_rate_limit_window")

type Result struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter counts attempts per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

type FixedWindow struct {
	client *redis.Client
	script *redis.Script
}

func NewFixedWindow(client *redis.Client) *FixedWindow {
	return &FixedWindow{
		client: client,
		script: redis.NewScript(fixedWindowScript),
	}
}

// Allow counts this attempt and reports whether it is within limit.
// Rejected attempts still count, so hammering a key keeps it blocked
// until the window expires.
func (f *FixedWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if key == "" || limit <= 0 || window <= 0 {
		return Result{}, ErrInvalidWindow
	}

	res, err := f.script.Run(ctx, f.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	return newResult(count, limit, time.Duration(ttl)*time.Millisecond, window), nil
}

func newResult(count int64, limit int, ttl, window time.Duration) Result {
	result := Result{
		Allowed: count <= int64(limit),
		Count:   count,
		Limit:   limit,
	}
	if !result.Allowed {
		if ttl <= 0 {
			ttl = window
		}
		result.RetryAfter = ttl
	}
	return result
}

// MemoryFixedWindow is a process-local Limiter for tests and single-node runs.
type MemoryFixedWindow struct {
	mu      sync.Mutex
	clock   clock.Clock
	windows map[string]memoryWindow
}

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryFixedWindow(c clock.Clock) *MemoryFixedWindow {
	if c == nil {
		c = clock.New()
	}
	return &MemoryFixedWindow{clock: c, windows: map[string]memoryWindow{}}
}

func (m *MemoryFixedWindow) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	if key == "" || limit <= 0 || window <= 0 {
		return Result{}, ErrInvalidWindow
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = memoryWindow{expiresAt: now.Add(window)}
	}
	w.count++
	m.windows[key] = w
	return newResult(w.count, limit, w.expiresAt.Sub(now), window), nil
}
