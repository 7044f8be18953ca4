// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 StudioFlow 服务端程序入口。

# 概述

cmd/studioflow 启动生成 API 服务，提供 serve、health、version 子命令。
配置按 .env → 默认值 → YAML → STUDIOFLOW_* 环境变量 → 旧版变量
（REPLICATE_API_TOKEN、GOOGLE_API_KEY、PORT）的顺序加载。

# 核心类型

  - Server：组装生成核心、handlers、幂等存储，管理 HTTP 与 Metrics 双端口
  - Middleware：func(http.Handler) http.Handler，直接用于 chi.Router.Use

# 路由

  - /api/generate、/api/generate-video、/api/upscale
  - /api/enhance-prompt、/api/inspect-model、/api/extract-frame、/api/analyze-video、/api/health
  - /uploads/*、/frames/* 静态媒体
  - /health、/healthz、/ready、/version；/metrics 位于独立端口

/api 下的路由经过按 IP 的准入限流（默认每 15 分钟 100 次）与请求体上限（默认 50 MB）。
*/
package main
