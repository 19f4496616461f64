// file: internals/features/policies/rate_limits/service/counter_store.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"vulcan_backend/internals/helpers/dbtime"
)

// CounterStore increments a fixed-window counter. The window starts at the
// first increment. Once the count has reached limit the counter is not bumped
// and allowed is false.
type CounterStore interface {
	Increment(ctx context.Context, key string, limit int, window time.Duration) (count int64, allowed bool, err error)
}

/* =========================================================
   Memory
========================================================= */

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	clock    dbtime.Clock
}

func NewMemoryCounterStore(clock dbtime.Clock) *MemoryCounterStore {
	return &MemoryCounterStore{counters: map[string]memoryCounter{}, clock: clock.OrDefault()}
}

func (s *MemoryCounterStore) Increment(_ context.Context, key string, limit int, window time.Duration) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = memoryCounter{expiresAt: now.Add(window)}
	}
	if c.count >= int64(limit) {
		s.counters[key] = c
		return c.count, false, nil
	}
	c.count++
	s.counters[key] = c
	return c.count, true, nil
}

// Count returns the live counter value, 0 when absent or expired.
func (s *MemoryCounterStore) Count(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || !s.clock().Before(c.expiresAt) {
		return 0
	}
	return c.count
}

/* =========================================================
   Redis
========================================================= */

const incrementScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[2]) then
  return {current, 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, 1}
`

type RedisCounterStore struct {
	client  redis.Scripter
	script  *redis.Script
	timeout time.Duration
}

func NewRedisCounterStore(client redis.Scripter) *RedisCounterStore {
	return &RedisCounterStore{
		client:  client,
		script:  redis.NewScript(incrementScript),
		timeout: 250 * time.Millisecond,
	}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, limit int, window time.Duration) (int64, bool, error) {
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.script.Run(ctx, s.client, []string{key}, ttl, limit).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected rate limit script reply %v", res)
	}
	return res[0], res[1] == 1, nil
}
