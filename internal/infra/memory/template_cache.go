package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/domain"
)

// TemplateCache caches template reads with TTL to avoid repeated DB hits.
// Writes go straight to the backing repository and invalidate the cache.
type TemplateCache struct {
	inner app.TemplateRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedTemplate
	gen   uint64 // bumped on every invalidation; stale loads are not stored
}

type cachedTemplate struct {
	template  domain.ExamTemplate
	expiresAt time.Time
}

func NewTemplateCache(inner app.TemplateRepository, ttl time.Duration) *TemplateCache {
	return &TemplateCache{
		inner: inner,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedTemplate),
	}
}

func (c *TemplateCache) Get(ctx context.Context, id string) (domain.ExamTemplate, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.template.Clone(), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.template, nil
		}
		gen := c.gen
		c.mu.RUnlock()

		t, err := c.inner.Get(ctx, id)
		if err != nil {
			return domain.ExamTemplate{}, err
		}

		expiresAt := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		if c.gen == gen {
			c.cache[id] = cachedTemplate{template: t, expiresAt: expiresAt}
		}
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	return result.(domain.ExamTemplate).Clone(), nil
}

func (c *TemplateCache) List(ctx context.Context) ([]domain.ExamTemplate, error) {
	return c.inner.List(ctx)
}

func (c *TemplateCache) Save(ctx context.Context, t domain.ExamTemplate) error {
	defer c.invalidate(t.ID)
	return c.inner.Save(ctx, t)
}

func (c *TemplateCache) Delete(ctx context.Context, id string) error {
	defer c.invalidate(id)
	return c.inner.Delete(ctx, id)
}

// SyncPublished flips flags on many templates, so the whole cache is dropped.
func (c *TemplateCache) SyncPublished(ctx context.Context, activeID string, version int64) error {
	defer c.invalidateAll()
	return c.inner.SyncPublished(ctx, activeID, version)
}

func (c *TemplateCache) invalidate(id string) {
	c.mu.Lock()
	c.gen++
	delete(c.cache, id)
	c.mu.Unlock()
	c.sf.Forget(id)
}

func (c *TemplateCache) invalidateAll() {
	c.mu.Lock()
	c.gen++
	for id := range c.cache {
		delete(c.cache, id)
		c.sf.Forget(id)
	}
	c.mu.Unlock()
}

func (c *TemplateCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
