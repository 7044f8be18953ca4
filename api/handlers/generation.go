package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/api"
	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/internal/idempotency"
	"github.com/BaSui01/studioflow/types"
)

// IdempotencyHeader 客户端重试时携带的请求键
const IdempotencyHeader = "Idempotency-Key"

// =============================================================================
// 🎨 生成 Handler
// =============================================================================

// Generator 生成编排入口，由 generation.Orchestrator 实现
type Generator interface {
	Generate(ctx context.Context, req generation.GenerationRequest) (*generation.GenerationResult, error)
	GenerateVideo(ctx context.Context, prompt, model string) (*generation.GenerationResult, error)
	Upscale(ctx context.Context, image string) (*generation.GenerationResult, error)
}

// GenerationDefaults 请求未指定模型时使用的默认值
type GenerationDefaults struct {
	ImageModel string
	VideoModel string
}

// GenerationHandler 图像/视频生成与超分处理器
type GenerationHandler struct {
	generator Generator
	replayer  *idempotency.Replayer
	defaults  GenerationDefaults
	logger    *zap.Logger
}

// NewGenerationHandler 创建生成处理器，replayer 为 nil 时不支持幂等重放
func NewGenerationHandler(generator Generator, replayer *idempotency.Replayer, defaults GenerationDefaults, logger *zap.Logger) *GenerationHandler {
	if defaults.ImageModel == "" {
		defaults.ImageModel = generation.DefaultImageModel
	}
	if defaults.VideoModel == "" {
		defaults.VideoModel = generation.DefaultVideoModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationHandler{
		generator: generator,
		replayer:  replayer,
		defaults:  defaults,
		logger:    logger.With(zap.String("handler", "generation")),
	}
}

// HandleGenerate 处理 POST /api/generate
// @Summary 生成图像
// @Description 按模型路由到 Replicate 或 Imagen 生成图像
// @Tags 生成
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "重试时重放上一次成功结果"
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} api.GenerateResponse "生成成功"
// @Failure 400 {object} api.ErrorResponse "请求无效"
// @Failure 409 {object} api.ErrorResponse "幂等键冲突"
// @Failure 502 {object} api.ErrorResponse "供应商失败或安全拒绝"
// @Failure 504 {object} api.ErrorResponse "超时"
// @Router /api/generate [post]
func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var body api.GenerateRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	req := h.toRequest(body)

	key := r.Header.Get(IdempotencyHeader)
	useReplay := h.replayer != nil && key != ""
	if useReplay {
		if err := idempotency.ValidateKey(key); err != nil {
			WriteError(w, err, h.logger)
			return
		}
		cached, found, err := h.replayer.Lookup(r.Context(), key, req)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		if found {
			w.Header().Set("Idempotent-Replayed", "true")
			writeGenerateResult(w, cached)
			return
		}
	}

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if useReplay {
		// 请求已被取消时仍保存结果，客户端重试可以直接拿到
		h.replayer.Remember(context.WithoutCancel(r.Context()), key, req, result)
	}
	writeGenerateResult(w, result)
}

// HandleGenerateVideo 处理 POST /api/generate-video
// @Summary 生成视频
// @Description 提交 Veo 长任务并轮询至完成，返回可直接下载的链接
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.GenerateVideoRequest true "视频请求"
// @Success 200 {object} api.GenerateVideoResponse "生成成功"
// @Failure 400 {object} api.ErrorResponse "请求无效"
// @Failure 502 {object} api.ErrorResponse "供应商失败或安全拒绝"
// @Failure 504 {object} api.ErrorResponse "轮询超时"
// @Router /api/generate-video [post]
func (h *GenerationHandler) HandleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var body api.GenerateVideoRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	model := strings.TrimSpace(body.Model)
	if model == "" {
		model = h.defaults.VideoModel
	}

	result, err := h.generator.GenerateVideo(r.Context(), body.Prompt, model)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.GenerateVideoResponse{Success: true, VideoURL: result.PrimaryURL})
}

// HandleUpscale 处理 POST /api/upscale
// @Summary 图像超分
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.UpscaleRequest true "超分请求"
// @Success 200 {object} api.URLResponse "超分成功"
// @Failure 400 {object} api.ErrorResponse "缺少图像"
// @Failure 502 {object} api.ErrorResponse "供应商失败"
// @Router /api/upscale [post]
func (h *GenerationHandler) HandleUpscale(w http.ResponseWriter, r *http.Request) {
	var body api.UpscaleRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	result, err := h.generator.Upscale(r.Context(), body.Image)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.URLResponse{Success: true, URL: result.PrimaryURL})
}

func (h *GenerationHandler) toRequest(body api.GenerateRequest) generation.GenerationRequest {
	model := strings.TrimSpace(body.Model)
	if model == "" {
		model = h.defaults.ImageModel
	}
	req := generation.GenerationRequest{
		Prompt:      body.Prompt,
		ModelID:     model,
		AspectRatio: generation.AspectRatio(body.AspectRatio),
		InputImage:  body.Image,
		OutputCount: body.NumOutputs,
		QualityTier: generation.QualityTier(body.Resolution),
	}
	return req.WithDefaults()
}

func writeGenerateResult(w http.ResponseWriter, result *generation.GenerationResult) {
	WriteJSON(w, http.StatusOK, api.GenerateResponse{
		Success: true,
		URL:     result.PrimaryURL,
		URLs:    result.AllURLs,
	})
}

// =============================================================================
// ✍️ 提示词增强 Handler
// =============================================================================

// Enhancer 提示词增强后端（Replicate Llama 或 Gemini）
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// PromptHandler 提示词增强处理器
type PromptHandler struct {
	enhancer Enhancer
	logger   *zap.Logger
}

// NewPromptHandler 创建提示词增强处理器
func NewPromptHandler(enhancer Enhancer, logger *zap.Logger) *PromptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptHandler{enhancer: enhancer, logger: logger.With(zap.String("handler", "prompt"))}
}

// HandleEnhance 处理 POST /api/enhance-prompt
// @Summary 增强提示词
// @Tags 提示词
// @Accept json
// @Produce json
// @Param request body api.EnhancePromptRequest true "原始提示词"
// @Success 200 {object} api.EnhancePromptResponse "增强后的提示词"
// @Failure 400 {object} api.ErrorResponse "缺少提示词"
// @Failure 502 {object} api.ErrorResponse "供应商失败"
// @Router /api/enhance-prompt [post]
func (h *PromptHandler) HandleEnhance(w http.ResponseWriter, r *http.Request) {
	var body api.EnhancePromptRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		WriteError(w, types.NewInvalidRequestError("Prompt is required"), h.logger)
		return
	}

	enhanced, err := h.enhancer.Enhance(r.Context(), body.Prompt)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.EnhancePromptResponse{Success: true, Prompt: enhanced})
}
