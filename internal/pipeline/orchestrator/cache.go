// internal/pipeline/orchestrator/cache.go
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ops-support-assistant/internal/models"
)

// AnswerCache memoizes delivered answers by normalized query text. Identical
// queries against the same index snapshot return the identical answer without
// re-running classification, retrieval, or synthesis. TTL 0 disables caching.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redis.Client, ttl time.Duration) *AnswerCache {
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func cacheKey(text string) string {
	return "ops:answer:" + strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func (c *AnswerCache) Get(ctx context.Context, text string) (*models.StructuredAnswer, bool) {
	if !c.enabled() {
		return nil, false
	}
	val, err := c.client.Get(ctx, cacheKey(text)).Result()
	if err != nil {
		return nil, false
	}
	var answer models.StructuredAnswer
	if err := json.Unmarshal([]byte(val), &answer); err != nil {
		return nil, false
	}
	return &answer, true
}

func (c *AnswerCache) Set(ctx context.Context, text string, answer *models.StructuredAnswer) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(text), data, c.ttl)
}
