package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DocumentStore JSON 文档存储（购物车、结算会话共用）
type DocumentStore interface {
	Load(ctx context.Context, key string, dest interface{}) (bool, error)
	Save(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NewDocumentStore Redis 启用时使用 Redis，否则回退进程内存储
func NewDocumentStore(namespace string) DocumentStore {
	if Enabled() {
		return &RedisDocumentStore{namespace: namespace}
	}
	return NewMemoryDocumentStore(namespace)
}

// RedisDocumentStore 基于 Redis 字符串键的文档存储
type RedisDocumentStore struct {
	namespace string
}

func (s *RedisDocumentStore) key(key string) string {
	return s.namespace + ":" + strings.TrimSpace(key)
}

// Load 读取文档
func (s *RedisDocumentStore) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	return GetJSON(ctx, s.key(key), dest)
}

// Save 写入文档并刷新过期时间
func (s *RedisDocumentStore) Save(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return SetJSON(ctx, s.key(key), value, ttl)
}

// Delete 删除文档
func (s *RedisDocumentStore) Delete(ctx context.Context, key string) error {
	return Del(ctx, s.key(key))
}

type memoryDocument struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryDocumentStore 进程内文档存储（单实例或测试使用）
type MemoryDocumentStore struct {
	namespace string
	mu        sync.RWMutex
	docs      map[string]memoryDocument
	now       func() time.Time
}

// NewMemoryDocumentStore 创建进程内文档存储
func NewMemoryDocumentStore(namespace string) *MemoryDocumentStore {
	return &MemoryDocumentStore{
		namespace: namespace,
		docs:      make(map[string]memoryDocument),
		now:       time.Now,
	}
}

func (s *MemoryDocumentStore) key(key string) string {
	return s.namespace + ":" + strings.TrimSpace(key)
}

// Load 读取文档，过期视为不存在
func (s *MemoryDocumentStore) Load(_ context.Context, key string, dest interface{}) (bool, error) {
	s.mu.RLock()
	doc, ok := s.docs[s.key(key)]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !doc.expiresAt.IsZero() && s.now().After(doc.expiresAt) {
		s.mu.Lock()
		delete(s.docs, s.key(key))
		s.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(doc.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Save 写入文档（以 JSON 副本保存，调用方后续修改不影响已存内容）
func (s *MemoryDocumentStore) Save(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	doc := memoryDocument{payload: payload}
	if ttl > 0 {
		doc.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.docs[s.key(key)] = doc
	s.mu.Unlock()
	return nil
}

// Delete 删除文档
func (s *MemoryDocumentStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, s.key(key))
	s.mu.Unlock()
	return nil
}
