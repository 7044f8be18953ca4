// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 StudioFlow 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 generation、providers、
api 等上层模块提供统一的错误契约与上下文传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含 HTTP 状态码、Retryable、Provider、
    Stage（出错阶段）、Reason（安全拒绝原因）与 Excerpt（有界原始载荷摘录）
  - ProviderErrorKind：供应商调用失败分类：transport / rejected / malformed

# 主要能力

  - 错误构造：NewInvalidModelError / NewProviderError / NewSafetyRejectedError /
    NewExtractionError / NewTimeoutError
  - 阶段标记：Tag 为错误补充来源阶段，非结构化错误转为 INTERNAL_ERROR
  - 上下文传播：WithTraceID / WithRequestID / WithClientIP
*/
package types
