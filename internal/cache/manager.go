package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("redis manager is closed")

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// Manager 持有共享的 Redis 客户端：建立连接、后台探活与关闭。
// 幂等存储与就绪检查都通过它访问 Redis。
type Manager struct {
	client  *redis.Client
	config  Config
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
	healthy atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// Config 连接配置
type Config struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	// TLSConfig 非空时使用 TLS 连接
	TLSConfig *tls.Config
	// DialTimeout 启动时 Ping 的超时
	DialTimeout time.Duration
	// HealthCheckInterval 为 0 时不启动后台探活
	HealthCheckInterval time.Duration
}

// DefaultConfig 返回默认连接配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		DialTimeout:         5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 连接 Redis，首次 Ping 失败时返回错误并释放客户端
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		TLSConfig:    config.TLSConfig,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis")),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.healthy.Store(true)

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	} else {
		close(m.done)
	}

	m.logger.Info("redis connected",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
		zap.Bool("tls", config.TLSConfig != nil),
	)
	return m, nil
}

// Client 返回底层客户端
func (m *Manager) Client() *redis.Client {
	return m.client
}

// Ping 检查 Redis 连接，供就绪检查使用
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Healthy 返回最近一次后台探活的结果
func (m *Manager) Healthy() bool {
	return m.healthy.Load()
}

// Close 停止探活并关闭客户端，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	<-m.done
	m.logger.Info("closing redis connection")
	return m.client.Close()
}

// =============================================================================
// 🏥 后台探活
// =============================================================================

func (m *Manager) healthCheckLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	defer cancel()

	err := m.client.Ping(ctx).Err()
	was := m.healthy.Swap(err == nil)
	switch {
	case err != nil && was:
		m.logger.Error("redis health check failed", zap.Error(err))
	case err == nil && !was:
		m.logger.Info("redis connection recovered")
	}
}
