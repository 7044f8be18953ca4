// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 API 与 metrics 两个监听端口的生命周期。

# 概述

Manager 包装 net/http.Server，统计进行中的请求数。生成类请求可能
持续数分钟（视频轮询、视频分析），因此 Config.RequestBudget 记录
最长的单请求耗时，Start 在写超时不足以覆盖它时发出警告。

# 关闭

Shutdown 停止接收新连接并排空进行中的请求；超过 ShutdownTimeout
仍未完成时强制断开，并在返回的错误中给出被中止的请求数。
WaitForShutdown 监听 SIGINT/SIGTERM 或后台服务异常后触发关闭。
*/
package server
