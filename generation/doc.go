// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package generation 实现图像/视频生成的编排核心：路由、调用、轮询与结果归一化。

# 概述

一次生成请求按固定方向流经各组件：

	Orchestrator → Router → Adapter → [Poller] → Normalizer → GenerationResult

Router 与 Normalizer 是纯函数式组件；每次 Poller.Run 独占自己的
OperationHandle，因此并发请求之间没有共享的可变状态。

# 核心类型

  - GenerationRequest：抽象生成请求（提示词、模型、宽高比、输入图像等）
  - ProviderTarget：路由结果：家族、适配器名称、端点模型与兼容性说明
  - RawResponse：供应商原始输出的标签联合：Sequence / Accessor /
    Location / Scalar / InlinePayload / *Operation
  - GenerationResult：唯一跨越系统边界的成功结果，AllURLs 永不为空
  - OperationHandle：长任务句柄，仅由 Poller 修改

# 轮询状态机

Poller 的状态为 submitted → polling → {done, rejected, failed, timed-out}。
等待由 Scheduler 抽象驱动，上限由尝试次数决定；取消 context 时直接放弃，
不会通知供应商终止任务。

# 错误

所有阶段错误都在 Orchestrator 中通过 types.Tag 标记来源阶段
（validate / route / invoke / poll / normalize），失败时从不返回部分结果。
*/
package generation
