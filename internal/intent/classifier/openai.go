package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ChatWallet/internal/intent"
)

const defaultModelName = "gpt-4o-mini"

// ChatCompleter 是 go-openai 客户端中用到的部分，便于测试替换。
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig 描述调用 Chat Completions 所需的信息。
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI 用大模型的 JSON 模式给消息打标签。
type OpenAI struct {
	client  ChatCompleter
	model   string
	timeout time.Duration
}

// NewOpenAI 根据配置创建分类器。
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	return NewOpenAIWithClient(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.Timeout), nil
}

// NewOpenAIWithClient 复用现成的客户端。
func NewOpenAIWithClient(client ChatCompleter, model string, timeout time.Duration) *OpenAI {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModelName
	}
	if timeout <= 0 {
		timeout = intent.DefaultClassifierTimeout
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

// Classify implements intent.Classifier.
func (c *OpenAI) Classify(ctx context.Context, text, _ string) (intent.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return intent.Classification{}, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return intent.Classification{}, errors.New("OpenAI 响应中没有有效的 choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return intent.Classification{}, errors.New("OpenAI 响应内容为空")
	}

	var structured analyzeResponse
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	if err := dec.Decode(&structured); err != nil {
		return intent.Classification{}, fmt.Errorf("解析 OpenAI 分类结果失败: %w", err)
	}
	return intent.Classification{
		Intent:     structured.Intent,
		Parameters: stringify(structured.Parameters),
		Response:   structured.Response,
	}, nil
}

const systemPrompt = "" +
	"You classify messages sent to a crypto wallet chat bot. " +
	"Reply with one JSON object: {\"intent\": string, \"parameters\": object, \"response\": string}. " +
	"intent is one of: balance, tokens, swap, bridge, send, help, none. " +
	"parameters may contain amount, fromToken, toToken, fromChain, toChain, token, recipient, chain; " +
	"use null for anything the user did not say and never guess addresses. " +
	"When intent is none, response is a short helpful reply; otherwise response is empty."
