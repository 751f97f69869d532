/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、缓冲区、上传、网关与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数与请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 缓冲区指标：已缓冲与已丢弃的对话轮次计数、冲刷次数与
    冲刷消息量分布。
  - 上传指标：上传总数（按结果分组）、上传耗时与当前队列深度。
  - 网关指标：记忆网关请求总数与耗时，按 endpoint/status 分组。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
