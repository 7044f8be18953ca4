// Package api 定义 StudioFlow HTTP API 的请求与响应结构。
//
// # API 概览
//
// StudioFlow 对外提供：
//   - 图像生成（Replicate Flux 系列、Google Imagen），支持 Idempotency-Key 重放
//   - 视频生成（Google Veo 长任务，服务端轮询至完成）
//   - 图像超分、提示词增强、模型元数据查询
//   - 视频帧提取（ffmpeg）
//   - 健康检查与指标
//
// # 错误
//
// 失败响应统一为 ErrorResponse：调用方错误返回 4xx，供应商、
// 传输、超时与安全拒绝返回 5xx。失败时从不返回部分结果。
//
// # Base URL
//
//	http://localhost:3002
package api
