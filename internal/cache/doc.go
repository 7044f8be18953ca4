// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理服务共享的 Redis 连接。

# 概述

Manager 负责 Redis 客户端的生命周期：启动时 Ping 确认可达，
运行期间后台定时探活（状态变化时记录日志），关闭时停止探活并释放连接池。
幂等重放存储（internal/idempotency）与 /ready 就绪检查都通过 Manager 获取客户端。

# 核心类型

  - Manager：持有 *redis.Client，提供 Client、Ping、Healthy、Close。
  - Config：地址、密码、连接池、可选 TLS 与探活间隔。
*/
package cache
