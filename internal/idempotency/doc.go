// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 idempotency 为生成接口提供基于 Idempotency-Key 的结果重放。

客户端携带相同的 Idempotency-Key 重试时，直接返回上一次成功的
GenerationResult，而不再向供应商发起计费调用。条目同时记录请求
指纹：同一个键配上不同的请求体会被拒绝（409），失败结果从不缓存。

存储后端有两种：

  - Redis（go-redis），多实例共享，过期由 Redis TTL 负责
  - 内存，单实例部署或未配置 Redis 时使用，后台定期清理
*/
package idempotency
