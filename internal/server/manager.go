package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Config 单个监听端口的配置
type Config struct {
	// Name 出现在日志中的监听名，如 "api"、"metrics"
	Name string `yaml:"name" json:"name"`

	Addr           string        `yaml:"addr" json:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`

	// RequestBudget 是单个请求可能占用的最长时间（视频轮询、视频分析），
	// 写超时不超过它时长任务会在返回前被截断
	RequestBudget time.Duration `yaml:"request_budget" json:"request_budget"`

	// ShutdownTimeout 排空进行中的生成请求的上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回 API 端口的默认配置。
// 写超时需覆盖视频轮询上限（60 次 × 3s），故默认 240s
func DefaultConfig() Config {
	return Config{
		Name:            "api",
		Addr:            ":3002",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    240 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		RequestBudget:   180 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// CoversBudget reports whether writes outlive the longest request.
// A zero write timeout or budget never truncates.
func (c Config) CoversBudget() bool {
	return c.WriteTimeout <= 0 || c.RequestBudget <= 0 || c.WriteTimeout > c.RequestBudget
}

// Manager 运行一个监听端口并统计进行中的请求，关闭时据此判断
// 生成任务是被排空还是被中止。
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	inFlight atomic.Int64
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "http"
	}
	m := &Manager{
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server"), zap.String("listener", config.Name)),
	}
	m.server = &http.Server{
		Addr:           config.Addr,
		Handler:        m.track(handler),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return m
}

func (m *Manager) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// InFlight 返回当前正在处理的请求数
func (m *Manager) InFlight() int64 {
	return m.inFlight.Load()
}

// Start 在后台开始服务，立即返回
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return fmt.Errorf("%s server is closed", m.config.Name)
	case m.listener != nil:
		return fmt.Errorf("%s server already started", m.config.Name)
	}

	if !m.config.CoversBudget() {
		m.logger.Warn("write timeout does not cover the request budget; long generations will be cut off",
			zap.Duration("write_timeout", m.config.WriteTimeout),
			zap.Duration("request_budget", m.config.RequestBudget),
		)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	m.logger.Info("listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("serve failed", zap.Error(err))
			select {
			case m.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Shutdown 停止接收新请求并等待进行中的请求完成。
// 超过 ShutdownTimeout 时强制断开，返回被中止的请求数。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	pending := m.inFlight.Load()
	m.logger.Info("draining", zap.Int64("in_flight", pending))

	shutdownCtx := ctx
	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		abandoned := m.inFlight.Load()
		_ = m.server.Close()
		m.logger.Error("drain incomplete, connections closed",
			zap.Int64("abandoned", abandoned),
			zap.Error(err),
		)
		return fmt.Errorf("%s server: %d requests abandoned: %w", m.config.Name, abandoned, err)
	}

	m.logger.Info("stopped", zap.Int64("drained", pending))
	return nil
}

// WaitForShutdown 阻塞到 SIGINT/SIGTERM 或服务异常退出，然后关闭
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(err))
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 返回后台服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// ListenAddr 返回实际监听地址（端口为 0 时由系统分配），未启动时为空
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Closed 报告 Shutdown 是否已被调用
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
