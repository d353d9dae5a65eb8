// Package notify delivers replies to the chat platform.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "ChatWallet/internal/errors"
)

// CodeNotifyFailed marks a reply the chat platform did not accept.
const CodeNotifyFailed xerrors.Code = "NOTIFY_FAILED"

func init() {
	xerrors.Register(CodeNotifyFailed, xerrors.Attributes{
		Message:   "chat platform rejected the reply",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

const (
	defaultAPIBase = "https://api.telegram.org"
	// MaxMessageRunes is Telegram's limit for one sendMessage text.
	MaxMessageRunes = 4096
)

// Sender delivers one reply to one chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	APIBase  string
	BotToken string
	Timeout  time.Duration
}

// Telegram posts replies through the Bot API sendMessage method.
type Telegram struct {
	endpoint   string
	httpClient *http.Client
}

// NewTelegram validates the config and builds a client.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("未提供 Telegram bot token")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Telegram{
		endpoint:   fmt.Sprintf("%s/bot%s/sendMessage", base, token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type sendMessageRequest struct {
	ChatID any    `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements Sender. Long texts are split into several messages.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	for _, chunk := range Split(text, MaxMessageRunes) {
		if err := t.send(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	var target any = chatID
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		target = id
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: target, Text: text})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建 sendMessage 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// url.Error 中带有 bot token，不向上传递原始错误文本。
		return xerrors.New(CodeNotifyFailed, "sendMessage request failed",
			xerrors.WithMetadata("chat_id", chatID),
			xerrors.WithMetadata("timeout", strconv.FormatBool(isTimeout(err))))
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var decoded apiResponse
	_ = json.Unmarshal(raw, &decoded)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !decoded.OK {
		return xerrors.New(CodeNotifyFailed,
			fmt.Sprintf("sendMessage status %d: %s", resp.StatusCode, strings.TrimSpace(decoded.Description)),
			xerrors.WithMetadata("chat_id", chatID),
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)))
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Split cuts text into chunks of at most limit runes, preferring line breaks.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{"(empty)"}
	}
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}
