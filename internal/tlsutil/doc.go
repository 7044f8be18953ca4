// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package tlsutil 为供应商 HTTP 客户端与 Redis 连接提供统一加固的 TLS 设置
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
