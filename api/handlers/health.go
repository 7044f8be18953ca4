package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/api"
)

// ServiceName 旧版前端依赖的服务名
const ServiceName = "Creative Studio API"

// readyTimeout bounds one /ready evaluation.
const readyTimeout = 5 * time.Second

// HealthCheck 一项就绪检查
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type registeredCheck struct {
	check    HealthCheck
	critical bool
}

// HealthHandler 服务存活与就绪。
// 关键检查（Redis）失败时返回 503；提示性检查（缺少的 API key）
// 只把状态降为 degraded，因为其余生成入口仍可服务。
type HealthHandler struct {
	logger *zap.Logger
	mu     sync.RWMutex
	checks []registeredCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger}
}

// RegisterCheck 注册关键检查，失败即未就绪
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.register(check, true)
}

// RegisterAdvisory 注册提示性检查，失败只降级
func (h *HealthHandler) RegisterAdvisory(check HealthCheck) {
	h.register(check, false)
}

func (h *HealthHandler) register(check HealthCheck, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, critical: critical})
}

// HandleLive 处理 /health 与 /healthz：进程存活即返回 200
// @Summary 存活检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务存活"
// @Router /healthz [get]
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: "healthy", Timestamp: time.Now()})
}

// HandleServiceHealth 处理 /api/health（前端使用的格式）
// @Summary 服务状态
// @Tags 健康
// @Produce json
// @Success 200 {object} api.ServiceStatus "服务正常"
// @Router /api/health [get]
func (h *HealthHandler) HandleServiceHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.ServiceStatus{Status: "ok", Service: ServiceName})
}

// HandleReady 并发执行全部检查
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "就绪（可能为 degraded）"
// @Failure 503 {object} HealthStatus "关键依赖不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]registeredCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, rc := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.run(ctx, rc)
		}()
	}
	wg.Wait()

	status := HealthStatus{Status: "healthy", Timestamp: time.Now(), Checks: make(map[string]CheckResult, len(checks))}
	for i, rc := range checks {
		res := results[i]
		status.Checks[rc.check.Name()] = res
		switch {
		case res.Status == "fail":
			status.Status = "unhealthy"
		case res.Status == "warn" && status.Status == "healthy":
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, rc registeredCheck) CheckResult {
	start := time.Now()
	err := rc.check.Check(ctx)
	latency := time.Since(start)

	res := CheckResult{Status: "pass", Latency: latency.String()}
	if err == nil {
		return res
	}
	res.Message = err.Error()
	res.Status = "warn"
	if rc.critical {
		res.Status = "fail"
	}
	h.logger.Warn("readiness check failed",
		zap.String("check", rc.check.Name()),
		zap.Bool("critical", rc.critical),
		zap.Duration("latency", latency),
		zap.Error(err),
	)
	return res
}

// HandleVersion 处理 /version
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// PingCheck 以 ping 函数实现的检查（Redis 等）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建 ping 检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string                    { return c.name }
func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// ProviderKeyCheck 报告未配置凭证的上游，
// 对应的模型族在调用时会被上游以 401 拒绝。
type ProviderKeyCheck struct {
	keys map[string]string
}

// NewProviderKeyCheck 以 上游名 → 凭证 创建检查
func NewProviderKeyCheck(keys map[string]string) *ProviderKeyCheck {
	return &ProviderKeyCheck{keys: keys}
}

func (c *ProviderKeyCheck) Name() string { return "provider_keys" }

func (c *ProviderKeyCheck) Check(context.Context) error {
	var missing []string
	for provider, key := range c.keys {
		if strings.TrimSpace(key) == "" {
			missing = append(missing, provider)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing API key: %s", strings.Join(missing, ", "))
}
