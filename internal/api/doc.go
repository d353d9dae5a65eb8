// Package api 承载 Telegram Webhook 入口：校验、解析更新并投递到收件队列，
// 同时暴露健康检查与 Prometheus 指标端点。
package api
