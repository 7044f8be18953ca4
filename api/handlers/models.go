package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/api"
	"github.com/BaSui01/studioflow/internal/frames"
	"github.com/BaSui01/studioflow/providers/google"
	"github.com/BaSui01/studioflow/providers/replicate"
	"github.com/BaSui01/studioflow/types"
)

var modelSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ModelInspector 查询模型元数据，由 replicate.Client 实现
type ModelInspector interface {
	GetModel(ctx context.Context, owner, name string) (map[string]any, error)
}

// ModelHandler 模型元数据处理器
type ModelHandler struct {
	inspector    ModelInspector
	defaultModel string
	logger       *zap.Logger
}

// NewModelHandler 创建模型处理器，未指定 model 时查询 defaultModel（通常为超分模型）
func NewModelHandler(inspector ModelInspector, defaultModel string, logger *zap.Logger) *ModelHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelHandler{
		inspector:    inspector,
		defaultModel: defaultModel,
		logger:       logger.With(zap.String("handler", "models")),
	}
}

// HandleInspect 处理 GET /api/inspect-model?model=owner/name
// @Summary 查询模型
// @Description 透传 Replicate 模型的名称、描述、最新版本与输入 schema
// @Tags 模型
// @Produce json
// @Param model query string false "owner/name，默认为超分模型"
// @Success 200 {object} api.InspectModelResponse "模型元数据"
// @Failure 400 {object} api.ErrorResponse "缺少或无效的模型"
// @Failure 502 {object} api.ErrorResponse "供应商失败"
// @Router /api/inspect-model [get]
func (h *ModelHandler) HandleInspect(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSpace(r.URL.Query().Get("model"))
	if model == "" {
		model = h.defaultModel
	}
	if model == "" {
		WriteError(w, types.NewInvalidRequestError("Model parameter is required"), h.logger)
		return
	}
	ref, err := replicate.ParseModelRef(model)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if !modelSegment.MatchString(ref.Owner) || !modelSegment.MatchString(ref.Name) {
		WriteError(w, types.NewInvalidModelError(model), h.logger)
		return
	}

	meta, err := h.inspector.GetModel(r.Context(), ref.Owner, ref.Name)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, toInspectResponse(meta))
}

func toInspectResponse(meta map[string]any) api.InspectModelResponse {
	resp := api.InspectModelResponse{Success: true}
	resp.Name, _ = meta["name"].(string)
	resp.Description, _ = meta["description"].(string)
	if latest, ok := meta["latest_version"].(map[string]any); ok {
		resp.LatestVersionID, _ = latest["id"].(string)
		if schema, ok := latest["openapi_schema"]; ok && schema != nil {
			if raw, err := json.Marshal(schema); err == nil {
				resp.Schema = raw
			}
		}
	}
	return resp
}

// =============================================================================
// 🎞️ 帧提取 Handler
// =============================================================================

// FrameExtractor 视频帧提取，由 frames.Extractor 实现
type FrameExtractor interface {
	Extract(ctx context.Context, videoFilename, timestamp string) (string, error)
}

// FrameHandler 帧提取处理器
type FrameHandler struct {
	extractor FrameExtractor
	logger    *zap.Logger
}

// NewFrameHandler 创建帧提取处理器
func NewFrameHandler(extractor FrameExtractor, logger *zap.Logger) *FrameHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameHandler{extractor: extractor, logger: logger.With(zap.String("handler", "frames"))}
}

// HandleExtract 处理 POST /api/extract-frame
// @Summary 提取视频帧
// @Tags 视频
// @Accept json
// @Produce json
// @Param request body api.ExtractFrameRequest true "视频文件与时间戳"
// @Success 200 {object} api.URLResponse "帧地址"
// @Failure 400 {object} api.ErrorResponse "缺少参数"
// @Failure 404 {object} api.ErrorResponse "视频不存在"
// @Router /api/extract-frame [post]
func (h *FrameHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var body api.ExtractFrameRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	url, err := h.extractor.Extract(r.Context(), body.VideoFilename, body.Timestamp)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.URLResponse{Success: true, URL: url})
}

// =============================================================================
// 🎬 视频分析 Handler
// =============================================================================

// VideoAnalyzer 视频分镜分析，由 google.Analyzer 实现
type VideoAnalyzer interface {
	Analyze(ctx context.Context, path string) ([]google.Scene, error)
}

// AnalysisHandler 视频分析处理器
type AnalysisHandler struct {
	analyzer  VideoAnalyzer
	uploadDir string
	logger    *zap.Logger
}

// NewAnalysisHandler 创建视频分析处理器，视频从 uploadDir 读取
func NewAnalysisHandler(analyzer VideoAnalyzer, uploadDir string, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{analyzer: analyzer, uploadDir: uploadDir, logger: logger.With(zap.String("handler", "analysis"))}
}

// HandleAnalyze 处理 POST /api/analyze-video
// @Summary 视频分镜分析
// @Description 上传 uploads 中的视频到 Gemini，返回每个镜头的时间、描述与再生成提示词
// @Tags 视频
// @Accept json
// @Produce json
// @Param request body api.AnalyzeVideoRequest true "视频文件"
// @Success 200 {object} api.AnalyzeVideoResponse "分镜列表"
// @Failure 400 {object} api.ErrorResponse "无效文件名"
// @Failure 404 {object} api.ErrorResponse "视频不存在"
// @Failure 502 {object} api.ErrorResponse "供应商失败"
// @Router /api/analyze-video [post]
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body api.AnalyzeVideoRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	path, err := frames.ResolveUpload(h.uploadDir, body.VideoFilename)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	scenes, err := h.analyzer.Analyze(r.Context(), path)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := api.AnalyzeVideoResponse{
		Success:       true,
		Scenes:        make([]api.Scene, 0, len(scenes)),
		VideoFilename: filepath.Base(path),
	}
	for _, sc := range scenes {
		resp.Scenes = append(resp.Scenes, api.Scene(sc))
	}
	WriteJSON(w, http.StatusOK, resp)
}
