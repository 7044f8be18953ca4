// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 StudioFlow HTTP API 的请求处理器实现。

# 概述

所有 Handler 均遵循标准 net/http 接口，依赖以小接口注入
（Generator、Enhancer、ModelInspector、FrameExtractor、VideoAnalyzer），
测试中可直接替换为假实现。

# 核心类型

  - GenerationHandler：图像生成（含 Idempotency-Key 重放）、视频生成与超分
  - PromptHandler：提示词增强
  - ModelHandler：Replicate 模型元数据查询
  - FrameHandler：视频帧提取
  - AnalysisHandler：Gemini 视频分镜分析
  - HealthHandler：存活与就绪检查；缺少上游 key 时就绪状态为 degraded
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与响应大小

# 错误响应

WriteError 将 types.Error 映射为 api.ErrorResponse：调用方错误为 4xx，
供应商、传输、超时与安全拒绝为 5xx，安全拒绝原因放在 details 中。
非结构化错误只返回 "internal error"。
*/
package handlers
