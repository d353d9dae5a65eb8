// Package inbox 负责入站聊天更新的排队与消费。Webhook 只负责入队，
// 处理器在工作协程中调用会话编排并回复。
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Update 是一条待处理的入站消息。
type Update struct {
	UpdateID   int64     `json:"update_id"`
	ChatID     string    `json:"chat_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Handler 处理来自队列的一条更新。
type Handler func(ctx context.Context, update Update) error

// Producer 负责向队列投递更新。
type Producer interface {
	Publish(ctx context.Context, update Update) error
	Close() error
}

// Consumer 负责从队列中消费更新。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

func encodeUpdate(update Update) ([]byte, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("序列化更新失败: %w", err)
	}
	return payload, nil
}

func decodeUpdate(payload []byte) (Update, error) {
	var update Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return Update{}, fmt.Errorf("解析更新失败: %w", err)
	}
	return update, nil
}
