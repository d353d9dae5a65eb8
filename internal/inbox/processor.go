package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ChatWallet/internal/agent"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/notify"
	"ChatWallet/internal/observability/alerting"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/pkg/logger"
)

// SlowDownText 是会话超出限速时的回复。
const SlowDownText = "⏳ You're sending messages too quickly. Please wait a moment and try again."

// Responder 定义了处理器所需的会话编排能力。
type Responder interface {
	HandleMessage(ctx context.Context, msg agent.Message) agent.Reply
}

// Processor 负责从队列消费更新，交给编排器处理并回复。
type Processor struct {
	responder      Responder
	sender         notify.Sender
	consumer       Consumer
	workerCount    int
	messageTimeout time.Duration
	sendTimeout    time.Duration
	limiters       *chatLimiters
	logger         *slog.Logger
	alerter        alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithMessageTimeout 设置单条消息的处理期限。
func WithMessageTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		if timeout > 0 {
			p.messageTimeout = timeout
		}
	}
}

// WithSendTimeout 设置回复发送期限，独立于处理期限。
func WithSendTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		if timeout > 0 {
			p.sendTimeout = timeout
		}
	}
}

// WithRateLimit 为每个会话设置令牌桶限速，perSecond <= 0 表示不限速。
func WithRateLimit(perSecond float64, burst int) ProcessorOption {
	return func(p *Processor) {
		p.limiters = newChatLimiters(perSecond, burst)
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(responder Responder, sender notify.Sender, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		responder:      responder,
		sender:         sender,
		consumer:       consumer,
		workerCount:    1,
		messageTimeout: 30 * time.Second,
		sendTimeout:    10 * time.Second,
		logger:         logger.Named("inbox"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动消费循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.responder == nil || p.sender == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理一条更新并恰好回复一次。
func (p *Processor) Handle(ctx context.Context, update Update) error {
	if update.ChatID == "" {
		p.logger.Warn("跳过缺少会话的更新", slog.Int64("update_id", update.UpdateID))
		return nil
	}
	start := time.Now()
	outcome := "replied"

	var text string
	if !p.limiters.Allow(update.ChatID) {
		outcome = "rate_limited"
		text = SlowDownText
		p.logger.Info("会话超出限速", slog.String("session_id", update.ChatID))
	} else {
		text = p.respond(ctx, update)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
	defer cancel()
	if err := p.sender.Send(sendCtx, update.ChatID, text); err != nil {
		outcome = "send_failed"
		p.logger.Error("回复发送失败",
			slog.String("session_id", update.ChatID),
			slog.Int64("update_id", update.UpdateID),
			slog.String("error", err.Error()),
		)
		p.emitAlert(sendCtx, update, notify.CodeNotifyFailed, err, "send")
		metrics.ObserveInboxMessage(outcome)
		return err
	}
	metrics.ObserveInboxMessage(outcome)
	p.logger.Debug("更新处理完成",
		slog.String("session_id", update.ChatID),
		slog.Int64("update_id", update.UpdateID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (p *Processor) respond(ctx context.Context, update Update) (text string) {
	msgCtx, cancel := context.WithTimeout(ctx, p.messageTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			p.logger.Error("处理更新时发生 panic",
				slog.String("session_id", update.ChatID),
				slog.String("error", err.Error()),
			)
			p.emitAlert(context.WithoutCancel(ctx), update, xerrors.CodeUnknown, err, "panic")
			text = agent.GenericFailureText
		}
	}()
	reply := p.responder.HandleMessage(msgCtx, agent.Message{SessionID: update.ChatID, Text: update.Text})
	if reply.Text == "" {
		return agent.GenericFailureText
	}
	return reply.Text
}

func (p *Processor) emitAlert(ctx context.Context, update Update, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:      code,
		Message:   cause.Error(),
		Severity:  attrs.Severity,
		SessionID: update.ChatID,
		Stage:     stage,
		Metadata: map[string]string{
			"update_id": fmt.Sprintf("%d", update.UpdateID),
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("session_id", update.ChatID),
			slog.String("stage", stage),
		)
	}
}
