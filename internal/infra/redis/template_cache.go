package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/domain"
)

// TemplateCache caches templates in Redis as JSON and falls back to the backing
// repository on a miss. Keys:
//
//	exam:template:{id}       JSON-encoded template
//	exam:template:keys       set of cached template keys, used for bulk invalidation
//	exam:template:gen:{id}   bumped whenever {id} is invalidated
//	exam:template:gen        bumped whenever every template is invalidated
//
// A fill only lands if neither generation moved while the template was loading, so a
// slow read can never put back a copy that a concurrent write already replaced.
type TemplateCache struct {
	client *redis.Client
	inner  app.TemplateRepository
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

const (
	templateIndexKey = "exam:template:keys"
	templateGenKey   = "exam:template:gen"
)

func NewTemplateCache(client *redis.Client, inner app.TemplateRepository, ttl time.Duration) *TemplateCache {
	return &TemplateCache{
		client: client,
		inner:  inner,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *TemplateCache) Get(ctx context.Context, id string) (domain.ExamTemplate, error) {
	if t, ok := c.cached(ctx, id); ok {
		return t, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if t, ok := c.cached(ctx, id); ok {
			return t, nil
		}
		return c.fill(ctx, id)
	})
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	return result.(domain.ExamTemplate).Clone(), nil
}

// fill loads id from the backing repository and caches it unless an invalidation
// happened in the meantime. Cache write failures are ignored.
func (c *TemplateCache) fill(ctx context.Context, id string) (domain.ExamTemplate, error) {
	keys := []string{c.genKey(id), templateGenKey}
	before, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return c.inner.Get(ctx, id)
	}
	t, err := c.inner.Get(ctx, id)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return t, nil
	}
	_ = c.client.Watch(ctx, func(tx *redis.Tx) error {
		now, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		if !sameGenerations(before, now) {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(id), raw, c.ttlWithJitter())
			pipe.SAdd(ctx, templateIndexKey, c.key(id))
			return nil
		})
		return err
	}, keys...)
	return t, nil
}

var errStaleFill = errors.New("template invalidated during fill")

func sameGenerations(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *TemplateCache) List(ctx context.Context) ([]domain.ExamTemplate, error) {
	return c.inner.List(ctx)
}

func (c *TemplateCache) Save(ctx context.Context, t domain.ExamTemplate) error {
	if err := c.inner.Save(ctx, t); err != nil {
		return err
	}
	c.invalidate(ctx, t.ID)
	return nil
}

func (c *TemplateCache) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// SyncPublished flips flags on many templates, so every cached template is dropped.
func (c *TemplateCache) SyncPublished(ctx context.Context, activeID string, version int64) error {
	if err := c.inner.SyncPublished(ctx, activeID, version); err != nil {
		return err
	}
	// a failed listing still bumps the generation so in-flight fills are dropped
	keys, _ := c.client.SMembers(ctx, templateIndexKey).Result()
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, templateGenKey)
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, templateIndexKey)
	_, _ = pipe.Exec(ctx)
	return nil
}

func (c *TemplateCache) cached(ctx context.Context, id string) (domain.ExamTemplate, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return domain.ExamTemplate{}, false
	}
	var t domain.ExamTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.ExamTemplate{}, false
	}
	return t, true
}

func (c *TemplateCache) invalidate(ctx context.Context, id string) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.genKey(id))
	pipe.Del(ctx, c.key(id))
	pipe.SRem(ctx, templateIndexKey, c.key(id))
	// best effort: the TTL bounds staleness
	_, _ = pipe.Exec(ctx)
	c.sf.Forget(id)
}

func (c *TemplateCache) key(id string) string {
	return "exam:template:" + id
}

func (c *TemplateCache) genKey(id string) string {
	return "exam:template:gen:" + id
}

func (c *TemplateCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
