package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/totem-events/backend/internal/models"
)

const feedKeyPrefix = "totem:feed:"

// FeedCache keeps the totem feed of one weekday and period for a short time.
type FeedCache interface {
	Get(ctx context.Context, key string) ([]models.Event, bool)
	Set(ctx context.Context, key string, events []models.Event)
	Invalidate(ctx context.Context)
}

// RedisFeedCache stores feeds as JSON strings with a TTL.
type RedisFeedCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisFeedCache creates the cache. A non-positive ttl disables it.
func NewRedisFeedCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisFeedCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeedCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached feed for key.
func (c *RedisFeedCache) Get(ctx context.Context, key string) ([]models.Event, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	raw, err := c.client.Get(ctx, feedKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("feed cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var list []models.Event
	if err := json.Unmarshal(raw, &list); err != nil {
		c.logger.Warn("feed cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return list, true
}

// Set stores the feed for key.
func (c *RedisFeedCache) Set(ctx context.Context, key string, events []models.Event) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, feedKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("feed cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached feed slot.
func (c *RedisFeedCache) Invalidate(ctx context.Context) {
	if c.ttl <= 0 {
		return
	}
	keys := make([]string, 0, len(weekdayNames)*3)
	for _, day := range weekdayNames {
		for _, p := range []Period{PeriodMorning, PeriodAfternoon, PeriodNight} {
			keys = append(keys, feedKeyPrefix+TotemQuery{Weekday: day, Period: p}.CacheKey())
		}
	}
	if err := c.client.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		c.logger.Warn("feed cache invalidation failed", zap.Error(err))
	}
}
