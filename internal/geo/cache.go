package geo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TravelCache stores travel estimates keyed by a coordinate pair. Passes
// repeat the same pairs constantly; caching keeps the provider fan-out
// well under the rate limit on re-runs.
type TravelCache interface {
	Get(ctx context.Context, key string) (TravelEstimate, bool)
	Put(ctx context.Context, key string, est TravelEstimate)
}

// MemoryTravelCache is the default process-local cache.
type MemoryTravelCache struct {
	mu sync.Mutex
	m  map[string]TravelEstimate
}

func NewMemoryTravelCache() *MemoryTravelCache {
	return &MemoryTravelCache{m: map[string]TravelEstimate{}}
}

func (c *MemoryTravelCache) Get(_ context.Context, key string) (TravelEstimate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	est, ok := c.m[key]
	return est, ok
}

func (c *MemoryTravelCache) Put(_ context.Context, key string, est TravelEstimate) {
	c.mu.Lock()
	c.m[key] = est
	c.mu.Unlock()
}

// RedisTravelCache shares estimates across instances.
type RedisTravelCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTravelCache(url string, ttl time.Duration) (*RedisTravelCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTravelCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *RedisTravelCache) Get(ctx context.Context, key string) (TravelEstimate, bool) {
	data, err := c.rdb.Get(ctx, "travel:"+key).Bytes()
	if err != nil {
		return TravelEstimate{}, false
	}
	var est TravelEstimate
	if err := json.Unmarshal(data, &est); err != nil {
		return TravelEstimate{}, false
	}
	return est, true
}

func (c *RedisTravelCache) Put(ctx context.Context, key string, est TravelEstimate) {
	data, _ := json.Marshal(est)
	_ = c.rdb.Set(ctx, "travel:"+key, data, c.ttl).Err()
}
