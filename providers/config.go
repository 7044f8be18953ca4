package providers

import "time"

// ReplicateConfig Replicate Provider 配置
type ReplicateConfig struct {
	APIToken string        `json:"api_token" yaml:"api_token"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// WaitSeconds 为 Prefer: wait 同步等待窗口（秒），Replicate 上限 60
	WaitSeconds int `json:"wait_seconds,omitempty" yaml:"wait_seconds,omitempty"`
}

// GoogleConfig Google Generative Language (Imagen / Veo / Gemini) 配置
type GoogleConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// AuthenticatedHosts 结果链接需要附带 key= 才能被调用方下载的主机
	AuthenticatedHosts []string `json:"authenticated_hosts,omitempty" yaml:"authenticated_hosts,omitempty"`
	// RatioFallback 宽高比映射表未命中时使用的比例
	RatioFallback string `json:"ratio_fallback,omitempty" yaml:"ratio_fallback,omitempty"`
	// StrictRatios 为 true 时未命中映射表直接拒绝请求
	StrictRatios bool `json:"strict_ratios,omitempty" yaml:"strict_ratios,omitempty"`
}

const (
	DefaultReplicateBaseURL = "https://api.replicate.com"
	DefaultGoogleBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultGoogleAuthHost   = "generativelanguage.googleapis.com"
	DefaultRatioFallback    = "1:1"
	DefaultWaitSeconds      = 60
)

// WithDefaults 返回补齐默认值的配置副本
func (c ReplicateConfig) WithDefaults() ReplicateConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultReplicateBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.WaitSeconds <= 0 || c.WaitSeconds > DefaultWaitSeconds {
		c.WaitSeconds = DefaultWaitSeconds
	}
	return c
}

// WithDefaults 返回补齐默认值的配置副本
func (c GoogleConfig) WithDefaults() GoogleConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultGoogleBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if len(c.AuthenticatedHosts) == 0 {
		c.AuthenticatedHosts = []string{DefaultGoogleAuthHost}
	}
	if c.RatioFallback == "" {
		c.RatioFallback = DefaultRatioFallback
	}
	return c
}
