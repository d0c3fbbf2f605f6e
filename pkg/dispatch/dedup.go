package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupKeyPrefix = "durgasflow:task:"

	// DefaultDedupTTL bounds how long a claimed task name blocks redelivery.
	DefaultDedupTTL = time.Hour
)

// Deduplicator lets exactly one worker claim a task name.
type Deduplicator interface {
	Claim(ctx context.Context, name string) (bool, error)
}

// RedisDeduplicator claims task names with SET NX so workers in different
// processes agree.
type RedisDeduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	return &RedisDeduplicator{client: client, ttl: ttl}
}

// NewRedisDeduplicatorFromURL parses a redis:// URL.
func NewRedisDeduplicatorFromURL(url string, ttl time.Duration) (*RedisDeduplicator, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewRedisDeduplicator(redis.NewClient(opts), ttl), nil
}

func (d *RedisDeduplicator) Claim(ctx context.Context, name string) (bool, error) {
	claimed, err := d.client.SetNX(ctx, dedupKeyPrefix+name, time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim task %s: %w", name, err)
	}

	return claimed, nil
}

func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}

// MemoryDeduplicator only deduplicates within one process.
type MemoryDeduplicator struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	return &MemoryDeduplicator{
		claimed: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (d *MemoryDeduplicator) Claim(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if at, ok := d.claimed[name]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}

	d.claimed[name] = now

	for k, at := range d.claimed {
		if now.Sub(at) >= d.ttl {
			delete(d.claimed, k)
		}
	}

	return true, nil
}
