package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL 默认保留时间
const DefaultTTL = time.Hour

// DefaultPrefix 默认 Redis 键前缀
const DefaultPrefix = "idempotency:"

// Store 幂等结果存储接口
type Store interface {
	// Get 获取缓存的原始结果
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set 写入结果并设置过期时间
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// Close 释放后台资源
	Close() error
}

// HashKey 对输入做 SHA256，得到定长键
func HashKey(inputs ...any) (string, error) {
	if len(inputs) == 0 {
		return "", errors.New("至少需要一个输入参数")
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("序列化输入失败: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// =============================================================================
// Redis
// =============================================================================

type redisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore 创建基于 Redis 的存储
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisStore{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "idempotency"), zap.String("backend", "redis")),
	}
}

func (s *redisStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("从 Redis 获取失败: %w", err)
	}
	s.logger.Debug("幂等键命中", zap.String("key", key), zap.Int("data_size", len(data)))
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("存储到 Redis 失败: %w", err)
	}
	s.logger.Debug("幂等键已存储", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("从 Redis 删除失败: %w", err)
	}
	return nil
}

// Close 客户端由调用方持有，这里不关闭
func (s *redisStore) Close() error { return nil }

// =============================================================================
// 内存
// =============================================================================

type memoryStore struct {
	mu              sync.RWMutex
	cache           map[string]memoryEntry
	now             func() time.Time
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
	logger          *zap.Logger
}

type memoryEntry struct {
	data      json.RawMessage
	expiresAt time.Time
}

// NewMemoryStore 创建内存存储，cleanupInterval <= 0 时使用 5 分钟
func NewMemoryStore(cleanupInterval time.Duration, logger *zap.Logger) Store {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &memoryStore{
		cache:           make(map[string]memoryEntry),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
		logger:          logger.With(zap.String("component", "idempotency"), zap.String("backend", "memory")),
	}
	go s.cleanupLoop()
	return s
}

func (s *memoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *memoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := 0
	for key, e := range s.cache {
		if now.After(e.expiresAt) {
			delete(s.cache, key)
			expired++
		}
	}
	if expired > 0 {
		s.logger.Debug("cleaned up expired idempotency entries",
			zap.Int("expired", expired),
			zap.Int("remaining", len(s.cache)))
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	e, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	s.cache[key] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
