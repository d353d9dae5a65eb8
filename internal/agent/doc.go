// Package agent 是会话编排核心：每条入站消息在这里解析为意图，
// 按会话状态分派到钱包、报价与余额处理器，并渲染恰好一条回复。
package agent
