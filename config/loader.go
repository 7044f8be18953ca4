// =============================================================================
// 📦 StudioFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 .env + YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithDotEnv(".env").
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("STUDIOFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 兼容旧变量
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 StudioFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Providers 供应商凭据与端点
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Generation 生成编排配置
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`

	// Enhancer 提示词增强配置
	Enhancer EnhancerConfig `yaml:"enhancer" env:"ENHANCER"`

	// Frames 视频帧提取配置
	Frames FramesConfig `yaml:"frames" env:"FRAMES"`

	// Analyzer 视频分镜分析配置
	Analyzer AnalyzerConfig `yaml:"analyzer" env:"ANALYZER"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Idempotency 幂等重放配置
	Idempotency IdempotencyConfig `yaml:"idempotency" env:"IDEMPOTENCY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不单独暴露
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需大于视频轮询上限
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 请求体上限（字节）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// 每个客户端 IP 在窗口内允许的请求数
	RateLimitRequests int `yaml:"rate_limit_requests" env:"RATE_LIMIT_REQUESTS"`
	// 限流窗口
	RateLimitWindow time.Duration `yaml:"rate_limit_window" env:"RATE_LIMIT_WINDOW"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// ProvidersConfig 供应商配置
type ProvidersConfig struct {
	Replicate ReplicateConfig `yaml:"replicate" env:"REPLICATE"`
	Google    GoogleConfig    `yaml:"google" env:"GOOGLE"`
}

// ReplicateConfig Replicate 凭据
type ReplicateConfig struct {
	// API Token
	APIToken string `yaml:"api_token" env:"API_TOKEN"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 同步等待秒数（Prefer: wait）
	WaitSeconds int `yaml:"wait_seconds" env:"WAIT_SECONDS"`
}

// GoogleConfig Google（Imagen / Veo / Gemini）凭据
type GoogleConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 需要追加 key 的下载域名
	AuthenticatedHosts []string `yaml:"authenticated_hosts" env:"AUTHENTICATED_HOSTS"`
}

// GenerationConfig 生成编排配置
type GenerationConfig struct {
	// 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 最大轮询次数
	PollMaxAttempts int `yaml:"poll_max_attempts" env:"POLL_MAX_ATTEMPTS"`
	// 默认图像模型
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// 默认视频模型
	DefaultVideoModel string `yaml:"default_video_model" env:"DEFAULT_VIDEO_MODEL"`
	// 超分模型
	UpscaleModel string `yaml:"upscale_model" env:"UPSCALE_MODEL"`
	// 额外别名（仅 YAML）
	Aliases map[string]string `yaml:"aliases" env:"-"`
	// Imagen 不支持的宽高比的回退值
	RatioFallback string `yaml:"ratio_fallback" env:"RATIO_FALLBACK"`
	// 为 true 时不支持的宽高比直接报错
	StrictRatios bool `yaml:"strict_ratios" env:"STRICT_RATIOS"`
	// 结果归一化并发上限
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
}

// EnhancerConfig 提示词增强配置
type EnhancerConfig struct {
	// 后端: replicate, gemini
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称，为空时使用后端默认值
	Model string `yaml:"model" env:"MODEL"`
}

// AnalyzerConfig 视频分镜分析配置（Gemini Files API）
type AnalyzerConfig struct {
	// 模型名称，为空时使用 gemini-2.5-pro
	Model string `yaml:"model" env:"MODEL"`
	// 上传文件处理状态的查询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 最多查询次数
	MaxPolls int `yaml:"max_polls" env:"MAX_POLLS"`
}

// FramesConfig 视频帧提取配置
type FramesConfig struct {
	// 上传视频目录
	UploadDir string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	// 帧输出目录
	FramesDir string `yaml:"frames_dir" env:"FRAMES_DIR"`
	// ffmpeg 可执行文件
	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	// 单次提取超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址，为空时使用内存存储
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// IdempotencyConfig 幂等配置
type IdempotencyConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 结果保留时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 键前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	dotEnv     []string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STUDIOFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotEnv 设置要预先加载的 .env 文件，已存在的环境变量不会被覆盖
func (l *Loader) WithDotEnv(paths ...string) *Loader {
	l.dotEnv = append(l.dotEnv, paths...)
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量 → 兼容旧变量
func (l *Loader) Load() (*Config, error) {
	// 0. .env 文件写入进程环境
	if err := l.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 兼容旧部署使用的变量名
	if err := applyLegacyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load legacy env: %w", err)
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadDotEnv() error {
	for _, p := range l.dotEnv {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// 未知字段视为错误，拼写错误的键不会被静默忽略
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// applyLegacyEnv 读取旧版服务使用的变量，仅在对应字段仍为空或默认时生效
func applyLegacyEnv(cfg *Config) error {
	if v := os.Getenv("REPLICATE_API_TOKEN"); v != "" && cfg.Providers.Replicate.APIToken == "" {
		cfg.Providers.Replicate.APIToken = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && cfg.Providers.Google.APIKey == "" {
		cfg.Providers.Google.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" && cfg.Server.HTTPPort == DefaultHTTPPort {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.HTTPPort = port
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRequests < 0 {
		errs = append(errs, "rate_limit_requests must not be negative")
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		errs = append(errs, "rate_limit_window must be positive")
	}

	if c.Generation.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be positive")
	}
	if c.Generation.PollMaxAttempts <= 0 {
		errs = append(errs, "poll_max_attempts must be positive")
	}
	if c.Generation.MaxConcurrency <= 0 {
		errs = append(errs, "max_concurrency must be positive")
	}

	switch c.Enhancer.Provider {
	case EnhancerReplicate, EnhancerGemini:
	default:
		errs = append(errs, fmt.Sprintf("unknown enhancer provider %q", c.Enhancer.Provider))
	}

	if c.Analyzer.PollInterval <= 0 {
		errs = append(errs, "analyzer poll_interval must be positive")
	}
	if c.Analyzer.MaxPolls <= 0 {
		errs = append(errs, "analyzer max_polls must be positive")
	}

	if c.Idempotency.Enabled && c.Idempotency.TTL <= 0 {
		errs = append(errs, "idempotency ttl must be positive")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollBudget 返回视频轮询的最长等待时间
func (g GenerationConfig) PollBudget() time.Duration {
	return g.PollInterval * time.Duration(g.PollMaxAttempts)
}

// WaitBudget 返回等待 Gemini 处理上传视频的最长时间
func (a AnalyzerConfig) WaitBudget() time.Duration {
	return a.PollInterval * time.Duration(a.MaxPolls)
}

// RequestBudget 返回单个请求可能占用的最长时间，HTTP 写超时应大于它
func (c *Config) RequestBudget() time.Duration {
	return max(c.Generation.PollBudget(), c.Analyzer.WaitBudget())
}
