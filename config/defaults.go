// =============================================================================
// 📦 StudioFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/studioflow/generation"
)

// DefaultHTTPPort 与旧版 Creative Studio 服务保持一致
const DefaultHTTPPort = 3002

// 提示词增强后端
const (
	EnhancerReplicate = "replicate"
	EnhancerGemini    = "gemini"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Providers:   DefaultProvidersConfig(),
		Generation:  DefaultGenerationConfig(),
		Enhancer:    DefaultEnhancerConfig(),
		Frames:      DefaultFramesConfig(),
		Analyzer:    DefaultAnalyzerConfig(),
		Redis:       DefaultRedisConfig(),
		Idempotency: DefaultIdempotencyConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           DefaultHTTPPort,
		MetricsPort:        9091,
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       240 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		MaxBodyBytes:       50 << 20, // 50 MB，容纳 base64 输入图像
		RateLimitRequests:  100,
		RateLimitWindow:    15 * time.Minute,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultProvidersConfig 返回默认供应商配置，凭据需由环境提供
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Replicate: ReplicateConfig{
			BaseURL:     "https://api.replicate.com",
			Timeout:     2 * time.Minute,
			WaitSeconds: 60,
		},
		Google: GoogleConfig{
			BaseURL:            "https://generativelanguage.googleapis.com",
			Timeout:            time.Minute,
			AuthenticatedHosts: []string{"generativelanguage.googleapis.com"},
		},
	}
}

// DefaultGenerationConfig 返回默认生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PollInterval:      generation.DefaultPollInterval,
		PollMaxAttempts:   generation.DefaultPollMaxAttempts,
		DefaultModel:      generation.DefaultImageModel,
		DefaultVideoModel: generation.DefaultVideoModel,
		UpscaleModel:      generation.RealESRGANModel,
		RatioFallback:     "1:1",
		StrictRatios:      false,
		MaxConcurrency:    4,
	}
}

// DefaultEnhancerConfig 返回默认提示词增强配置
func DefaultEnhancerConfig() EnhancerConfig {
	return EnhancerConfig{
		Provider: EnhancerReplicate,
	}
}

// DefaultFramesConfig 返回默认帧提取配置
func DefaultFramesConfig() FramesConfig {
	return FramesConfig{
		UploadDir:  "uploads",
		FramesDir:  "frames",
		FFmpegPath: "ffmpeg",
		Timeout:    30 * time.Second,
	}
}

// DefaultAnalyzerConfig 返回默认视频分析配置，约 5 分钟等待上限
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		PollInterval: 2 * time.Second,
		MaxPolls:     60,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultIdempotencyConfig 返回默认幂等配置
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Enabled: true,
		TTL:     time.Hour,
		Prefix:  "idempotency:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "studioflow",
		SampleRate:   0.1,
	}
}
