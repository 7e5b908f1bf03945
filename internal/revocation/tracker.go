package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateTracker counts requests per subject within the current minute window.
// Keys expire on their own, so a quiet subject costs nothing.
type RateTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRateTracker(client *redis.Client, ttl time.Duration) *RateTracker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RateTracker{client: client, ttl: ttl}
}

func (t *RateTracker) Track(ctx context.Context, subject string) (int64, error) {
	key := rateKey(subject, time.Now().UTC())

	pipe := t.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("track request rate: %w", err)
	}
	return incr.Val(), nil
}

func rateKey(subject string, now time.Time) string {
	return fmt.Sprintf("%s:%d", subject, now.Minute())
}

// MemoryRateTracker mirrors RateTracker semantics without Redis, for tests.
type MemoryRateTracker struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryRateTracker() *MemoryRateTracker {
	return &MemoryRateTracker{counts: make(map[string]int64)}
}

func (t *MemoryRateTracker) Track(_ context.Context, subject string) (int64, error) {
	key := rateKey(subject, time.Now().UTC())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return t.counts[key], nil
}
