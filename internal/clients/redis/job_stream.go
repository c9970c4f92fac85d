package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/sse"
)

// JobStreamBus fans job/task stream messages out across instances over redis
// pub/sub so every API node can serve the SSE stream.
type JobStreamBus interface {
	Publish(ctx context.Context, msg sse.StreamMessage) error
	StartForwarder(ctx context.Context, onMsg func(m sse.StreamMessage)) error
	Close() error
}

type jobStreamBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	sub     *goredis.PubSub
}

func NewJobStreamBus(log *logger.Logger) (JobStreamBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_JOB_STREAM_CHANNEL"))
	if ch == "" {
		ch = "eventscout:scrape_jobs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	return &jobStreamBus{
		log:     log.With("client", "JobStreamBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *jobStreamBus) Publish(ctx context.Context, msg sse.StreamMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stream message: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *jobStreamBus) StartForwarder(ctx context.Context, onMsg func(m sse.StreamMessage)) error {
	b.sub = b.rdb.Subscribe(ctx, b.channel)
	if _, err := b.sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		ch := b.sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg sse.StreamMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("Failed to decode stream message", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *jobStreamBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Close()
	}
	return b.rdb.Close()
}
