package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 锁已被其他请求持有
var ErrLockHeld = errors.New("lock is held by another request")

// Locker 按键互斥
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// NewLocker Redis 启用时使用分布式锁，否则使用进程内锁
func NewLocker(namespace string) Locker {
	if Enabled() {
		return &RedisLocker{namespace: namespace}
	}
	return NewMemoryLocker()
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的锁
type RedisLocker struct {
	namespace string
}

// Acquire 获取锁，已被持有时返回 ErrLockHeld
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	client := Client()
	if client == nil {
		return func() {}, nil
	}
	lockKey := buildKey("lock:" + l.namespace + ":" + key)
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = releaseLockScript.Run(context.Background(), client, []string{lockKey}, token).Err()
	}, nil
}

// MemoryLocker 进程内锁
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// Acquire 获取锁，已被持有时返回 ErrLockHeld
func (l *MemoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLockHeld
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
