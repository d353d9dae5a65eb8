package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ChatWallet/internal/intent"
)

// HTTPConfig 描述外部意图分析服务。
type HTTPConfig struct {
	URL     string
	Timeout time.Duration
}

// HTTP 调用外部分析服务：POST {message, chatId} -> {intent, parameters, response}。
type HTTP struct {
	url        string
	httpClient *http.Client
}

// NewHTTP 创建 HTTP 分类器。
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("未提供意图分析服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = intent.DefaultClassifierTimeout
	}
	return &HTTP{url: url, httpClient: &http.Client{Timeout: timeout}}, nil
}

type analyzeRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

type analyzeResponse struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
	Response   string         `json:"response"`
	Error      string         `json:"error"`
}

// Classify implements intent.Classifier.
func (c *HTTP) Classify(ctx context.Context, text, sessionID string) (intent.Classification, error) {
	payload, err := json.Marshal(analyzeRequest{Message: text, ChatID: sessionID})
	if err != nil {
		return intent.Classification{}, fmt.Errorf("序列化分析请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return intent.Classification{}, fmt.Errorf("构建分析请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return intent.Classification{}, fmt.Errorf("请求意图分析服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return intent.Classification{}, fmt.Errorf("意图分析服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded analyzeResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return intent.Classification{}, fmt.Errorf("解析意图分析响应失败: %w", err)
	}
	if decoded.Error != "" {
		return intent.Classification{}, fmt.Errorf("意图分析服务报错: %s", decoded.Error)
	}
	return intent.Classification{
		Intent:     decoded.Intent,
		Parameters: stringify(decoded.Parameters),
		Response:   decoded.Response,
	}, nil
}

// stringify 丢弃 null 参数，数字保留原始文本。
func stringify(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for key, value := range params {
		switch v := value.(type) {
		case nil:
		case string:
			if strings.TrimSpace(v) != "" {
				out[key] = v
			}
		case json.Number:
			out[key] = v.String()
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
