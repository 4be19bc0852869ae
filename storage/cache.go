package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"meptrack-api/domain"
)

type backend interface {
	ListMembers(ctx context.Context, f domain.Filter) ([]domain.Member, error)
	BulkInsertMembers(ctx context.Context, members []domain.Member) error
	BulkUpdateMembers(ctx context.Context, updates []domain.MemberUpdate) error
	BulkDeleteMembers(ctx context.Context, internalIDs []int64) error
	InsertChangeEvents(ctx context.Context, events []domain.ChangeEvent) (int, error)
	ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error)
	EnqueueChangeSummary(ctx context.Context, summary domain.ChangeSummary) error
}

// Cache wraps a Storage with Redis-backed caching for the two hot listings:
// the unfiltered roster and the change log. Filtered listings always hit the
// backing store. Every write evicts, so a single-writer deployment stays
// coherent; the TTL bounds staleness if anything else ever writes the tables.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

const (
	rosterCacheKey  = "meps:all"
	changesCacheKey = "changes:all"
)

func (c *Cache) ListMembers(ctx context.Context, f domain.Filter) ([]domain.Member, error) {
	if f != nil {
		return c.base.ListMembers(ctx, f)
	}
	if members, ok := c.loadMembers(ctx); ok {
		return members, nil
	}
	members, err := c.base.ListMembers(ctx, nil)
	if err != nil {
		return nil, err
	}
	c.store(ctx, rosterCacheKey, members)
	return members, nil
}

func (c *Cache) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if events, ok := c.loadChanges(ctx); ok {
		return clip(events, limit), nil
	}
	events, err := c.base.ListChangeEvents(ctx, 0)
	if err != nil {
		return nil, err
	}
	c.store(ctx, changesCacheKey, events)
	return clip(events, limit), nil
}

func (c *Cache) BulkInsertMembers(ctx context.Context, members []domain.Member) error {
	err := c.base.BulkInsertMembers(ctx, members)
	c.evict(ctx, rosterCacheKey)
	return err
}

func (c *Cache) BulkUpdateMembers(ctx context.Context, updates []domain.MemberUpdate) error {
	err := c.base.BulkUpdateMembers(ctx, updates)
	c.evict(ctx, rosterCacheKey)
	return err
}

func (c *Cache) BulkDeleteMembers(ctx context.Context, internalIDs []int64) error {
	err := c.base.BulkDeleteMembers(ctx, internalIDs)
	c.evict(ctx, rosterCacheKey)
	return err
}

func (c *Cache) InsertChangeEvents(ctx context.Context, events []domain.ChangeEvent) (int, error) {
	n, err := c.base.InsertChangeEvents(ctx, events)
	if n > 0 {
		c.evict(ctx, changesCacheKey)
	}
	return n, err
}

func (c *Cache) EnqueueChangeSummary(ctx context.Context, summary domain.ChangeSummary) error {
	return c.base.EnqueueChangeSummary(ctx, summary)
}

func (c *Cache) loadMembers(ctx context.Context) ([]domain.Member, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, rosterCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, rosterCacheKey).Err()
		}
		return nil, false
	}
	var members []domain.Member
	if err := json.Unmarshal(data, &members); err != nil {
		_ = c.redis.Del(ctx, rosterCacheKey).Err()
		return nil, false
	}
	return members, true
}

func (c *Cache) loadChanges(ctx context.Context) ([]domain.ChangeEvent, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, changesCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, changesCacheKey).Err()
		}
		return nil, false
	}
	var events []domain.ChangeEvent
	if err := json.Unmarshal(data, &events); err != nil {
		_ = c.redis.Del(ctx, changesCacheKey).Err()
		return nil, false
	}
	return events, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, key).Result()
}

func clip(events []domain.ChangeEvent, limit int) []domain.ChangeEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}
