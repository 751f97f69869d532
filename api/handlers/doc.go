/*
Package handlers 提供 MemFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 MemFlow 所有 HTTP 端点的请求处理逻辑，
包括对话轮次记录、记忆注入、记忆检索、缓冲状态查询、配置管理、
登录认证、上传事件推送以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - PipelineHandler  — 对话轮次记录与记忆注入（提示词增强）
  - MemoryHandler    — 记忆检索（JSON / Markdown 报告）与缓冲状态
  - ConfigHandler    — 脱敏配置查看与运行时阈值调整
  - AuthHandler      — 管理面板登录与 JWT 校验中间件
  - EventsHandler    — 上传完成事件的 WebSocket 广播
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码

# 错误处理

所有错误通过 types.Error 表达，WriteError 负责映射到 HTTP 状态码并
记录结构化日志。
*/
package handlers
