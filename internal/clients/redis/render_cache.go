package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/utils"
)

// RenderCache caches rendered page HTML keyed by URL so repeat scrapes of the
// same page within a job window skip the renderer.
type RenderCache interface {
	Get(ctx context.Context, url string) (string, bool)
	Set(ctx context.Context, url, html string)
	Close() error
}

type renderCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRenderCache(log *logger.Logger) (RenderCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlMin := utils.GetEnvAsInt("RENDER_CACHE_TTL_MINUTES", 30, log)
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return &renderCache{
		log: log.With("client", "RenderCache"),
		rdb: rdb,
		ttl: time.Duration(ttlMin) * time.Minute,
	}, nil
}

func cacheKey(url string) string {
	return "eventscout:render:" + url
}

func (c *renderCache) Get(ctx context.Context, url string) (string, bool) {
	val, err := c.rdb.Get(ctx, cacheKey(url)).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("Render cache read failed", "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *renderCache) Set(ctx context.Context, url, html string) {
	if err := c.rdb.Set(ctx, cacheKey(url), html, c.ttl).Err(); err != nil {
		c.log.Warn("Render cache write failed", "error", err)
	}
}

func (c *renderCache) Close() error {
	return c.rdb.Close()
}
