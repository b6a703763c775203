package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kinesis-pay/internal/gateway"
	"kinesis-pay/pkg/redis"
)

var errCacheMiss = errors.New("cache miss")

// RateCache fronts gateway exchange-rate lookups with memory and, when configured, Redis.
type RateCache struct {
	gw       Gateway
	redis    *redis.Client
	logger   *zap.Logger
	memCache *MemoryCache
	ttl      time.Duration
}

// MemoryCache holds rates for one process. Entries expire lazily on read.
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]*CacheEntry
	maxAge time.Duration
	now    func() time.Time
}

type CacheEntry struct {
	Rate     decimal.Decimal
	CachedAt time.Time
}

// NewRateCache creates a rate cache. redisClient may be nil.
func NewRateCache(gw Gateway, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *RateCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RateCache{
		gw:       gw,
		redis:    redisClient,
		logger:   logger,
		memCache: NewMemoryCache(ttl),
		ttl:      ttl,
	}
}

func NewMemoryCache(maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		data:   make(map[string]*CacheEntry),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Rate returns the best bid for base in quote, asking the gateway on a cache miss.
func (rc *RateCache) Rate(ctx context.Context, base, quote string, ref gateway.AuditRef) (decimal.Decimal, error) {
	if rate, err := rc.Get(ctx, base, quote); err == nil {
		return rate, nil
	}

	rate, err := rc.gw.GetExchangeRate(ctx, base, quote, ref)
	if err != nil {
		return decimal.Zero, err
	}

	rc.Set(ctx, base, quote, rate)
	return rate, nil
}

// Get checks memory first, then Redis.
func (rc *RateCache) Get(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	key := rc.cacheKey(base, quote)

	if rate, ok := rc.memCache.Get(key); ok {
		rc.logger.Debug("cache hit (memory)", zap.String("pair", key))
		return rate, nil
	}

	if rc.redis == nil {
		return decimal.Zero, errCacheMiss
	}

	data, err := rc.redis.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrKeyNotFound) {
			rc.logger.Warn("redis rate lookup failed", zap.String("key", key), zap.Error(err))
		}
		return decimal.Zero, errCacheMiss
	}

	rate, err := decimal.NewFromString(data)
	if err != nil {
		rc.logger.Warn("discarding malformed cached rate", zap.String("key", key), zap.String("value", data))
		return decimal.Zero, errCacheMiss
	}

	rc.logger.Debug("cache hit (redis)", zap.String("pair", key))
	rc.memCache.Set(key, rate)
	return rate, nil
}

// Set stores a rate in both layers. A Redis failure only costs a future lookup.
func (rc *RateCache) Set(ctx context.Context, base, quote string, rate decimal.Decimal) {
	key := rc.cacheKey(base, quote)
	rc.memCache.Set(key, rate)

	if rc.redis == nil {
		return
	}
	if err := rc.redis.Set(ctx, key, rate.String(), rc.ttl); err != nil {
		rc.logger.Error("failed to cache rate in redis", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops a pair from both layers so the next lookup asks the gateway.
func (rc *RateCache) Invalidate(ctx context.Context, base, quote string) error {
	key := rc.cacheKey(base, quote)
	rc.memCache.Delete(key)

	if rc.redis == nil {
		return nil
	}
	if err := rc.redis.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate cached rate %s: %w", key, err)
	}
	return nil
}

func (rc *RateCache) cacheKey(base, quote string) string {
	return fmt.Sprintf("kpay:rate:%s_%s", strings.ToUpper(base), strings.ToUpper(quote))
}

func (mc *MemoryCache) Get(key string) (decimal.Decimal, bool) {
	mc.mu.RLock()
	entry, ok := mc.data[key]
	mc.mu.RUnlock()

	if !ok {
		return decimal.Zero, false
	}
	if mc.now().Sub(entry.CachedAt) > mc.maxAge {
		mc.mu.Lock()
		if cur, ok := mc.data[key]; ok && cur == entry {
			delete(mc.data, key)
		}
		mc.mu.Unlock()
		return decimal.Zero, false
	}
	return entry.Rate, true
}

func (mc *MemoryCache) Set(key string, rate decimal.Decimal) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data[key] = &CacheEntry{Rate: rate, CachedAt: mc.now()}
}

func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
}
