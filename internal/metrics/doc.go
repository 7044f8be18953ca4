// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
生成编排、长任务轮询与缓存四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 同时实现 generation.Observer，由编排层直接上报。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 生成指标：按 family/provider/outcome 计数，端到端耗时直方图。
  - 轮询指标：状态转换计数、到达终态时的轮询次数分布。
  - 缓存指标：幂等结果缓存的命中与未命中计数，按 cache_type 分组。
*/
package metrics
