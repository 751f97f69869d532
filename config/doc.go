// Package config 提供 MemFlow 的配置管理功能。
//
// 包含配置加载、校验与运行时可变阈值。
// 支持从 YAML 文件和环境变量加载配置，
// 管理面板通过 Save 将变更写回配置文件。
package config
