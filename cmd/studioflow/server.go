package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/api/handlers"
	"github.com/BaSui01/studioflow/config"
	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/internal/cache"
	"github.com/BaSui01/studioflow/internal/frames"
	"github.com/BaSui01/studioflow/internal/idempotency"
	"github.com/BaSui01/studioflow/internal/metrics"
	"github.com/BaSui01/studioflow/internal/server"
	"github.com/BaSui01/studioflow/internal/telemetry"
	"github.com/BaSui01/studioflow/internal/tlsutil"
	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/providers/google"
	"github.com/BaSui01/studioflow/providers/replicate"
	"github.com/BaSui01/studioflow/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 StudioFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 生成核心
	orchestrator *generation.Orchestrator

	// Handlers
	healthHandler     *handlers.HealthHandler
	generationHandler *handlers.GenerationHandler
	promptHandler     *handlers.PromptHandler
	modelHandler      *handlers.ModelHandler
	frameHandler      *handlers.FrameHandler
	analysisHandler   *handlers.AnalysisHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 幂等存储
	redis *cache.Manager
	store idempotency.Store

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("studioflow", s.logger)

	// 2. 初始化幂等存储
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init idempotency store: %w", err)
	}

	// 3. 初始化生成核心与 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Duration("poll_budget", s.cfg.Generation.PollBudget()),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 配置了 redis.addr 时使用 Redis，否则退回进程内存储
func (s *Server) initStore() error {
	if !s.cfg.Idempotency.Enabled {
		s.logger.Info("Idempotency replay disabled")
		return nil
	}

	if s.cfg.Redis.Addr == "" {
		s.store = idempotency.NewMemoryStore(time.Minute, s.logger)
		s.logger.Info("Idempotency store: memory")
		return nil
	}

	redisCfg := cache.DefaultConfig()
	redisCfg.Addr = s.cfg.Redis.Addr
	redisCfg.Password = s.cfg.Redis.Password
	redisCfg.DB = s.cfg.Redis.DB
	redisCfg.PoolSize = s.cfg.Redis.PoolSize
	redisCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	if s.cfg.Redis.TLS {
		redisCfg.TLSConfig = tlsutil.RedisTLSConfig(s.cfg.Redis.Addr)
	}
	mgr, err := cache.NewManager(redisCfg, s.logger)
	if err != nil {
		// Redis 不可达时退回进程内存储，不阻止启动
		s.logger.Warn("Redis not reachable, falling back to memory idempotency store",
			zap.String("addr", s.cfg.Redis.Addr), zap.Error(err))
		s.store = idempotency.NewMemoryStore(time.Minute, s.logger)
		return nil
	}
	s.redis = mgr
	s.store = idempotency.NewRedisStore(mgr.Client(), s.cfg.Idempotency.Prefix, s.logger)
	s.logger.Info("Idempotency store: redis", zap.String("addr", s.cfg.Redis.Addr))
	return nil
}

// initHandlers 初始化生成核心与所有 handlers
func (s *Server) initHandlers() error {
	gen := s.cfg.Generation

	replicateClient := replicate.NewClient(providers.ReplicateConfig{
		APIToken:    s.cfg.Providers.Replicate.APIToken,
		BaseURL:     s.cfg.Providers.Replicate.BaseURL,
		Timeout:     s.cfg.Providers.Replicate.Timeout,
		WaitSeconds: s.cfg.Providers.Replicate.WaitSeconds,
	}, s.logger)
	googleCfg := providers.GoogleConfig{
		APIKey:             s.cfg.Providers.Google.APIKey,
		BaseURL:            s.cfg.Providers.Google.BaseURL,
		Timeout:            s.cfg.Providers.Google.Timeout,
		AuthenticatedHosts: s.cfg.Providers.Google.AuthenticatedHosts,
		RatioFallback:      gen.RatioFallback,
		StrictRatios:       gen.StrictRatios,
	}

	if s.cfg.Providers.Replicate.APIToken == "" {
		s.logger.Warn("Replicate API token not configured, Replicate calls will be rejected upstream")
	}
	if s.cfg.Providers.Google.APIKey == "" {
		s.logger.Warn("Google API key not configured, Imagen and Veo calls will be rejected upstream")
	}

	s.orchestrator = generation.NewOrchestrator(generation.Options{
		Router: generation.NewRouter(generation.DefaultCatalog().WithAliases(gen.Aliases)),
		Adapters: []generation.Adapter{
			replicate.NewImageAdapter(replicateClient, s.logger),
			replicate.NewUpscaleAdapter(replicateClient, s.logger),
			google.NewImagenAdapter(googleCfg, s.logger),
			google.NewVeoAdapter(googleCfg, s.logger),
		},
		Poller: generation.NewPoller(generation.PollerConfig{
			Interval:    gen.PollInterval,
			MaxAttempts: gen.PollMaxAttempts,
			Observer:    s.metricsCollector,
		}, s.logger),
		Normalizer:   generation.NewNormalizer(gen.MaxConcurrency),
		Observer:     s.metricsCollector,
		UpscaleModel: gen.UpscaleModel,
	}, s.logger)

	var replayer *idempotency.Replayer
	if s.store != nil {
		replayer = idempotency.NewReplayer(s.store, s.cfg.Idempotency.TTL, s.metricsCollector, s.logger)
	}
	s.generationHandler = handlers.NewGenerationHandler(s.orchestrator, replayer, handlers.GenerationDefaults{
		ImageModel: gen.DefaultModel,
		VideoModel: gen.DefaultVideoModel,
	}, s.logger)

	s.promptHandler = handlers.NewPromptHandler(s.newEnhancer(replicateClient, googleCfg), s.logger)
	s.modelHandler = handlers.NewModelHandler(replicateClient, gen.UpscaleModel, s.logger)
	s.frameHandler = handlers.NewFrameHandler(frames.NewExtractor(frames.Config{
		UploadDir:  s.cfg.Frames.UploadDir,
		FramesDir:  s.cfg.Frames.FramesDir,
		FFmpegPath: s.cfg.Frames.FFmpegPath,
		Timeout:    s.cfg.Frames.Timeout,
	}, nil, s.logger), s.logger)
	s.analysisHandler = handlers.NewAnalysisHandler(s.newAnalyzer(googleCfg), s.cfg.Frames.UploadDir, s.logger)

	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.redis != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.redis.Ping))
	}
	s.healthHandler.RegisterAdvisory(handlers.NewProviderKeyCheck(map[string]string{
		generation.ProviderReplicate: s.cfg.Providers.Replicate.APIToken,
		"google":                     s.cfg.Providers.Google.APIKey,
	}))

	s.logger.Info("Handlers initialized",
		zap.String("enhancer", s.cfg.Enhancer.Provider),
		zap.Bool("idempotency", replayer != nil),
	)
	return nil
}

// newEnhancer 按配置选择提示词增强后端
func (s *Server) newEnhancer(client *replicate.Client, googleCfg providers.GoogleConfig) handlers.Enhancer {
	if s.cfg.Enhancer.Provider != config.EnhancerGemini {
		return replicate.NewEnhancer(client, s.cfg.Enhancer.Model, s.logger)
	}
	enhancer, err := google.NewEnhancer(context.Background(), googleCfg, s.cfg.Enhancer.Model, s.logger)
	if err != nil {
		s.logger.Warn("Gemini enhancer unavailable", zap.Error(err))
		return unavailableEnhancer{err: err}
	}
	return enhancer
}

// newAnalyzer 创建 Gemini 视频分析器
func (s *Server) newAnalyzer(googleCfg providers.GoogleConfig) handlers.VideoAnalyzer {
	analyzer, err := google.NewAnalyzer(context.Background(), googleCfg, google.AnalyzerConfig{
		Model:        s.cfg.Analyzer.Model,
		PollInterval: s.cfg.Analyzer.PollInterval,
		MaxPolls:     s.cfg.Analyzer.MaxPolls,
	}, s.logger)
	if err != nil {
		s.logger.Warn("Gemini video analyzer unavailable", zap.Error(err))
		return unavailableAnalyzer{err: err}
	}
	return analyzer
}

// unavailableEnhancer 在增强后端无法初始化时返回 503
type unavailableEnhancer struct {
	err error
}

func (u unavailableEnhancer) Enhance(context.Context, string) (string, error) {
	return "", types.NewError(types.ErrServiceUnavailable, "Prompt enhancer is not configured").WithCause(u.err)
}

// unavailableAnalyzer 在 Gemini 客户端无法初始化时返回 503
type unavailableAnalyzer struct {
	err error
}

func (u unavailableAnalyzer) Analyze(context.Context, string) ([]google.Scene, error) {
	return nil, types.NewError(types.ErrServiceUnavailable, "Video analyzer is not configured").WithCause(u.err)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建 chi 路由树
func (s *Server) routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	)

	// ========================================
	// 运维端点
	// ========================================
	r.Get("/health", s.healthHandler.HandleLive)
	r.Get("/healthz", s.healthHandler.HandleLive)
	r.Get("/ready", s.healthHandler.HandleReady)
	r.Get("/readyz", s.healthHandler.HandleReady)
	r.Get("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 静态媒体
	// ========================================
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Frames.UploadDir))))
	r.Handle("/frames/*", http.StripPrefix("/frames/", http.FileServer(http.Dir(s.cfg.Frames.FramesDir))))

	// ========================================
	// API 路由（限流 + 请求体上限）
	// ========================================
	r.Route("/api", func(r chi.Router) {
		r.Use(
			RateLimiter(ctx, s.cfg.Server.RateLimitRequests, s.cfg.Server.RateLimitWindow, s.logger),
			MaxBody(s.cfg.Server.MaxBodyBytes),
		)
		r.Get("/health", s.healthHandler.HandleServiceHealth)
		r.Post("/generate", s.generationHandler.HandleGenerate)
		r.Post("/generate-video", s.generationHandler.HandleGenerateVideo)
		r.Post("/upscale", s.generationHandler.HandleUpscale)
		r.Post("/enhance-prompt", s.promptHandler.HandleEnhance)
		r.Get("/inspect-model", s.modelHandler.HandleInspect)
		r.Post("/extract-frame", s.frameHandler.HandleExtract)
		r.Post("/analyze-video", s.analysisHandler.HandleAnalyze)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", nil)
	})

	return r
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		RequestBudget:   s.cfg.RequestBudget(),
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.routes(rateLimiterCtx), serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.ListenAddr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器，metrics_port 为 0 时跳过
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(r, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭幂等存储
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Idempotency store close error", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	// 4. 刷新遥测数据
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
