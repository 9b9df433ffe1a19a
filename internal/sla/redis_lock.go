package sla

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultLockKey is the Redis key sweeps lock on.
const DefaultLockKey = "civictrack:sla:sweep-lock"

// unlockScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another process is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by SET NX PX.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLocker{rdb: rdb, key: key, ttl: ttl, log: log}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		// Звільняємо лок навіть якщо контекст запиту вже скасовано.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			l.log.Warn("sla: failed to release sweep lock", zap.Error(err))
		}
	}
	return release, true, nil
}
