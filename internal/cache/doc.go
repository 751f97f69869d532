/*
包 cache 提供基于 Redis 的检索结果缓存，配合 singleflight 降低对
远端记忆服务的重复查询压力。

# 概述

本包封装 go-redis 客户端，按 (user, conversation, query) 缓存一次
记忆检索的响应。键中带有会话代数：一批回合上传成功后递增代数，
该会话的全部旧缓存即整体失效，无需遍历删除。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 GetSearch/SetSearch/InvalidateConversation。
  - Config：缓存配置，包含地址、密码、键前缀、TTL 与
    健康检查间隔等参数。

# 主要能力

  - 检索缓存：JSON 序列化存取 gateway 检索响应。
  - 代数失效：InvalidateConversation 原子递增会话代数。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 优雅关闭：Close 方法安全释放底层 Redis 连接。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
