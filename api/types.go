package api

import (
	"encoding/json"
)

// =============================================================================
// 图像生成
// =============================================================================

// GenerateRequest 图像生成请求。
// @Description 图像生成请求结构
type GenerateRequest struct {
	// 提示词
	Prompt string `json:"prompt" example:"a glass cube on a beach at dusk" binding:"required"`
	// 模型标识或别名
	Model string `json:"model,omitempty" example:"black-forest-labs/flux-schnell"`
	// 宽高比
	AspectRatio string `json:"aspectRatio,omitempty" example:"3:2"`
	// 输入图像（data URL、base64 或远程 URL）
	Image string `json:"image,omitempty"`
	// 输出数量（1-4）
	NumOutputs int `json:"numOutputs,omitempty" example:"1"`
	// 质量档位：1K、2K、4K
	Resolution string `json:"resolution,omitempty" example:"1K"`
}

// GenerateResponse 图像生成响应。
// @Description 图像生成响应结构
type GenerateResponse struct {
	Success bool `json:"success"`
	// 第一张结果
	URL string `json:"url"`
	// 全部结果，按供应商返回顺序
	URLs []string `json:"urls"`
}

// =============================================================================
// 视频生成
// =============================================================================

// GenerateVideoRequest 视频生成请求。
// @Description 视频生成请求结构
type GenerateVideoRequest struct {
	Prompt string `json:"prompt" example:"a drone shot over a misty forest" binding:"required"`
	Model  string `json:"model,omitempty" example:"models/veo-2.0-generate-001"`
}

// GenerateVideoResponse 视频生成响应。
// @Description 视频生成响应结构
type GenerateVideoResponse struct {
	Success  bool   `json:"success"`
	VideoURL string `json:"videoUrl"`
}

// =============================================================================
// 超分、提示词增强、帧提取
// =============================================================================

// UpscaleRequest 超分请求。
// @Description 超分请求结构
type UpscaleRequest struct {
	Image string `json:"image" binding:"required"`
}

// URLResponse 返回单个 URL 的响应。
// @Description 单 URL 响应结构
type URLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// EnhancePromptRequest 提示词增强请求。
// @Description 提示词增强请求结构
type EnhancePromptRequest struct {
	Prompt string `json:"prompt" example:"cube" binding:"required"`
}

// EnhancePromptResponse 提示词增强响应。
// @Description 提示词增强响应结构
type EnhancePromptResponse struct {
	Success bool   `json:"success"`
	Prompt  string `json:"prompt"`
}

// ExtractFrameRequest 帧提取请求。
// @Description 帧提取请求结构
type ExtractFrameRequest struct {
	// uploads 目录下的视频文件名
	VideoFilename string `json:"videoFilename" example:"clip.mp4" binding:"required"`
	// 时间戳，如 00:00:05 或 1.5
	Timestamp string `json:"timestamp" example:"00:00:05" binding:"required"`
}

// AnalyzeVideoRequest 视频分析请求。
// @Description 视频分析请求结构
type AnalyzeVideoRequest struct {
	// uploads 目录下的视频文件名
	VideoFilename string `json:"videoFilename" example:"clip.mp4" binding:"required"`
}

// Scene 视频中的一个镜头。
type Scene struct {
	Time        string `json:"time" example:"00:05"`
	Description string `json:"description"`
	ImagePrompt string `json:"img_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

// AnalyzeVideoResponse 视频分析响应，videoFilename 可直接用于帧提取。
// @Description 视频分析响应结构
type AnalyzeVideoResponse struct {
	Success       bool    `json:"success"`
	Scenes        []Scene `json:"scenes"`
	VideoFilename string  `json:"videoFilename"`
}

// InspectModelResponse 模型元数据。
// @Description Replicate 模型元数据
type InspectModelResponse struct {
	Success         bool            `json:"success"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	LatestVersionID string          `json:"latestVersionId,omitempty"`
	Schema          json.RawMessage `json:"schema,omitempty"`
}

// =============================================================================
// 通用
// =============================================================================

// ServiceStatus /api/health 响应。
// @Description 服务状态
type ServiceStatus struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service" example:"Creative Studio API"`
}

// ErrorResponse 错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 面向用户的错误消息
	Error string `json:"error"`
	// 错误码，如 SAFETY_REJECTED
	Code string `json:"code"`
	// 失败阶段：validate、route、invoke、poll、normalize
	Stage string `json:"stage,omitempty"`
	// 供应商
	Provider string `json:"provider,omitempty"`
	// 安全拒绝原因或原始响应摘要
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
