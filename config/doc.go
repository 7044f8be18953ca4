// 版权所有 2026 StudioFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 StudioFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STUDIOFLOW_ 环境变量 → 旧版变量
// （REPLICATE_API_TOKEN、GOOGLE_API_KEY、PORT）的顺序叠加，
// .env 文件在最前面载入进程环境。
package config
