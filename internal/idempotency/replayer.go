package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/types"
)

// MaxKeyLength 客户端提供的键的长度上限
const MaxKeyLength = 255

const cacheType = "idempotency"

// CacheRecorder 记录命中率，由 metrics.Collector 实现
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type entry struct {
	Fingerprint string                      `json:"fingerprint"`
	Result      generation.GenerationResult `json:"result"`
	StoredAt    time.Time                   `json:"stored_at"`
}

// Replayer 按 Idempotency-Key 保存并重放生成结果
type Replayer struct {
	store    Store
	ttl      time.Duration
	recorder CacheRecorder
	logger   *zap.Logger
}

// NewReplayer 创建重放器，recorder 可为 nil
func NewReplayer(store Store, ttl time.Duration, recorder CacheRecorder, logger *zap.Logger) *Replayer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		store:    store,
		ttl:      ttl,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "idempotency")),
	}
}

// ValidateKey 校验客户端提供的键
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return types.NewInvalidRequestError("Idempotency-Key must not be blank")
	}
	if len(key) > MaxKeyLength {
		return types.NewInvalidRequestError("Idempotency-Key is too long")
	}
	return nil
}

// Fingerprint 对影响结果的请求字段做摘要
func Fingerprint(req generation.GenerationRequest) (string, error) {
	return HashKey(req.Prompt, req.ModelID, string(req.AspectRatio), req.InputImage, req.OutputCount, string(req.QualityTier))
}

// Lookup 返回已保存的结果。键已被不同请求使用时返回 409 错误；
// 存储故障只记录日志并按未命中处理，不阻断生成
func (r *Replayer) Lookup(ctx context.Context, key string, req generation.GenerationRequest) (*generation.GenerationResult, bool, error) {
	fp, err := Fingerprint(req)
	if err != nil {
		return nil, false, types.NewError(types.ErrInternalError, "fingerprinting request").WithCause(err).WithHTTPStatus(http.StatusInternalServerError)
	}

	raw, found, err := r.store.Get(ctx, storageKey(key))
	if err != nil {
		r.logger.Warn("idempotency lookup failed", zap.Error(err))
		r.miss()
		return nil, false, nil
	}
	if !found {
		r.miss()
		return nil, false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.logger.Warn("discarding undecodable idempotency entry", zap.Error(err))
		_ = r.store.Delete(ctx, storageKey(key))
		r.miss()
		return nil, false, nil
	}
	if e.Fingerprint != fp {
		return nil, false, types.NewError(types.ErrInvalidRequest, "Idempotency-Key was already used with a different request").
			WithHTTPStatus(http.StatusConflict)
	}

	if r.recorder != nil {
		r.recorder.RecordCacheHit(cacheType)
	}
	r.logger.Debug("replaying generation result", zap.Time("stored_at", e.StoredAt))
	return &e.Result, true, nil
}

// Remember 保存成功结果，写入失败只记录日志
func (r *Replayer) Remember(ctx context.Context, key string, req generation.GenerationRequest, result *generation.GenerationResult) {
	if result == nil {
		return
	}
	fp, err := Fingerprint(req)
	if err != nil {
		r.logger.Warn("fingerprinting request failed", zap.Error(err))
		return
	}
	e := entry{Fingerprint: fp, Result: *result, StoredAt: time.Now().UTC()}
	if err := r.store.Set(ctx, storageKey(key), e, r.ttl); err != nil {
		r.logger.Warn("storing idempotency entry failed", zap.Error(err))
	}
}

func (r *Replayer) miss() {
	if r.recorder != nil {
		r.recorder.RecordCacheMiss(cacheType)
	}
}

// storageKey 将客户端键哈希为定长，避免把任意字节写入 Redis 键名
func storageKey(key string) string {
	k, _ := HashKey(key)
	return k
}
