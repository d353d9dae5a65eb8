package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelAudit    Channel = "audit"
	ChannelTelegram Channel = "telegram"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	SessionID  string
	Stage      string
	Metadata   map[string]string
	OccurredAt time.Time
}

// FromError 根据错误码属性构造事件。
func FromError(err error, sessionID, stage string) Event {
	code := xerrors.CodeOf(err)
	event := Event{
		Code:       code,
		Severity:   xerrors.SeverityOf(err),
		SessionID:  sessionID,
		Stage:      stage,
		Metadata:   map[string]string{},
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		event.Message = err.Error()
	}
	if e, ok := xerrors.From(err); ok {
		for k, v := range e.Metadata() {
			event.Metadata[k] = v
		}
	}
	return event
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 将告警写入审计日志。
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel 返回审计渠道。
func (n *LogNotifier) Channel() Channel { return ChannelAudit }

// Notify 写一条审计记录。
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	log := logger.Audit()
	if n != nil && n.Logger != nil {
		log = n.Logger
	}
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("session_id", event.SessionID),
		slog.String("stage", event.Stage),
		slog.String("message", event.Message),
	}
	for _, k := range sortedKeys(event.Metadata) {
		attrs = append(attrs, slog.String("meta."+k, event.Metadata[k]))
	}
	log.Warn("告警事件", attrs...)
	return nil
}

// ChatSender 是 ChatNotifier 所需的最小发送能力。
type ChatSender interface {
	Send(ctx context.Context, chatID, text string) error
}

// ChatNotifier 把告警推送到运维会话。
type ChatNotifier struct {
	Sender ChatSender
	ChatID string
}

// Channel 返回 Telegram 渠道。
func (n *ChatNotifier) Channel() Channel { return ChannelTelegram }

// Notify 发送运维消息。
func (n *ChatNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChatID == "" {
		logger.L().Warn("ChatNotifier 未正确配置，跳过发送", slog.String("code", string(event.Code)))
		return nil
	}
	return n.Sender.Send(ctx, n.ChatID, Format(event))
}

// Format 渲染告警文本。
func Format(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(event.Severity)), event.Code)
	if event.Stage != "" {
		fmt.Fprintf(&b, "stage: %s\n", event.Stage)
	}
	if event.SessionID != "" {
		fmt.Fprintf(&b, "session: %s\n", event.SessionID)
	}
	if !event.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", event.OccurredAt.Format(time.RFC3339))
	}
	b.WriteString(event.Message)
	for _, k := range sortedKeys(event.Metadata) {
		fmt.Fprintf(&b, "\n- %s: %s", k, event.Metadata[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
