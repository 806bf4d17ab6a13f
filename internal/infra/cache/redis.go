package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"feedback-relay/internal/domain"
)

// RedisDeduper реализует domain.Deduper через Redis SETNX.
// Работает и между несколькими экземплярами ретранслятора.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

var _ domain.Deduper = (*RedisDeduper)(nil)

// NewRedis создаёт дедупликатор. Пустой prefix заменяется на "feedback:dedup:".
func NewRedis(client *redis.Client, prefix string) *RedisDeduper {
	if prefix == "" {
		prefix = "feedback:dedup:"
	}
	return &RedisDeduper{client: client, prefix: prefix}
}

// Seen отмечает ключ на window и сообщает, был ли он уже отмечен.
func (d *RedisDeduper) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	ok, err := d.client.SetNX(ctx, d.prefix+key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !ok, nil
}

// Forget снимает отметку, например если установка сообщения не удалась.
func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}
