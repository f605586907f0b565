package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-board/domain"
)

// Cache wraps a store with a Redis read-through copy of the board.
type Cache struct {
	base  backend
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, key string, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if key == "" {
		key = DefaultKey
	}
	return &Cache{base: base, redis: client, key: key, ttl: ttl}
}

func (c *Cache) Load(ctx context.Context) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx); ok {
		return tasks, nil
	}
	tasks, err := c.base.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasks)
	return tasks, nil
}

// Save writes through to the base store and refreshes the cached copy, so
// the next Load is served from Redis. A failed write drops the cached copy
// since the base store may hold either version.
func (c *Cache) Save(ctx context.Context, tasks []domain.Task) error {
	if err := c.base.Save(ctx, tasks); err != nil {
		c.evict(ctx)
		return err
	}
	if c.ttl == 0 {
		c.evict(ctx)
		return nil
	}
	c.store(ctx, tasks)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.cacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).Debug("board cache read failed")
			_ = c.redis.Del(ctx, c.cacheKey()).Err()
		}
		return nil, false
	}
	tasks, err := decodeTasks(data)
	if err != nil {
		_ = c.redis.Del(ctx, c.cacheKey()).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := encodeTasks(tasks)
	if err != nil {
		c.evict(ctx)
		return
	}
	if err := c.redis.Set(ctx, c.cacheKey(), data, c.ttl).Err(); err != nil {
		log.WithError(err).Debug("board cache write failed")
		c.evict(ctx)
	}
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, c.cacheKey()).Result()
}

func (c *Cache) cacheKey() string {
	return "board:" + c.key
}
