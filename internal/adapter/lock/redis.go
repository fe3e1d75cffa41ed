// Package lock provides ports.JobLock implementations so that only one
// scheduled import or sweep runs at a time.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "actionables:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ ports.JobLock = (*RedisLock)(nil)

// RedisLock is a SET NX lease shared by all replicas.
type RedisLock struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisLock(client *redis.Client, logger *zap.Logger) *RedisLock {
	return &RedisLock{client: client, logger: logger.Named("lock")}
}

func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release job lock", zap.String("lock", name), zap.Error(err))
		}
	}
	return release, true, nil
}

// Ping checks the redis connection.
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
