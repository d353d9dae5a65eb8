package agent

import (
	"context"
	"log/slog"
	"time"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/intent"
	"ChatWallet/internal/observability/alerting"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/internal/quote"
	"ChatWallet/internal/registry"
	"ChatWallet/internal/wallet"
	"ChatWallet/internal/web3"
	"ChatWallet/pkg/logger"
)

// CodeBalanceUnavailable 表示链上余额查询失败。
const CodeBalanceUnavailable xerrors.Code = "BALANCE_UNAVAILABLE"

func init() {
	xerrors.Register(CodeBalanceUnavailable, xerrors.Attributes{
		Message:   "❌ Error getting balance. Please try again.",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Public:    true,
	})
}

// Message 是一条待处理的会话消息。
type Message struct {
	SessionID string
	Text      string
}

// Reply 是对一条消息的唯一回复。Err 保留内部原因，仅用于日志与测试。
type Reply struct {
	Text string
	Kind intent.Kind
	Err  error
}

// Resolver 把原始文本解析为意图。
type Resolver interface {
	Resolve(ctx context.Context, sessionID, text string) (intent.Intent, error)
}

// Quoter 是报价引擎的能力集合。
type Quoter interface {
	QuoteSwap(ctx context.Context, acct quote.Account, req quote.SwapRequest) (quote.Quote, error)
	QuoteBridge(ctx context.Context, acct quote.Account, req quote.BridgeRequest) (quote.Quote, error)
	QuoteSend(ctx context.Context, acct quote.Account, req quote.SendRequest) (quote.Quote, error)
	ExecuteSwap(ctx context.Context, acct quote.Account, q quote.Quote) (quote.Receipt, error)
	ExecuteBridge(ctx context.Context, acct quote.Account, q quote.Quote) (quote.Receipt, error)
	ExecuteSend(ctx context.Context, acct quote.Account, q quote.Quote) (quote.Receipt, error)
}

// Chains 按链 ID 提供 RPC 客户端。
type Chains interface {
	Client(chainID uint64) (web3.Client, bool)
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithBalanceConcurrency 设置代币余额查询的并发上限。
func WithBalanceConcurrency(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.balanceConcurrency = n
		}
	}
}

// WithBalanceCacheTTL 设置代币余额表的缓存时间，0 表示不缓存。
func WithBalanceCacheTTL(ttl time.Duration) Option {
	return func(a *Agent) {
		a.balanceTTL = ttl
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(d alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerter = d
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

const (
	defaultBalanceConcurrency = 4
	defaultBalanceTTL         = 15 * time.Second
)

// Agent 编排意图解析、钱包状态与报价执行。
type Agent struct {
	resolver Resolver
	wallets  *wallet.Service
	quotes   Quoter
	chains   Chains
	registry *registry.Registry

	balanceConcurrency int
	balanceTTL         time.Duration
	balances           *balanceCache

	alerter alerting.Dispatcher
	log     *slog.Logger
}

// New 创建一个 Agent。chains 为空时余额类命令返回查询失败。
func New(resolver Resolver, wallets *wallet.Service, quotes Quoter, chains Chains, reg *registry.Registry, opts ...Option) (*Agent, error) {
	a := &Agent{
		resolver:           resolver,
		wallets:            wallets,
		quotes:             quotes,
		chains:             chains,
		registry:           reg,
		balanceConcurrency: defaultBalanceConcurrency,
		balanceTTL:         defaultBalanceTTL,
		log:                logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if resolver == nil || wallets == nil || quotes == nil || reg == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "agent 依赖未完整配置")
	}
	cache, err := newBalanceCache(a.balanceTTL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建余额缓存失败")
	}
	a.balances = cache
	return a, nil
}

// Close 释放余额缓存。
func (a *Agent) Close() {
	if a != nil && a.balances != nil {
		a.balances.Close()
	}
}

// HandleMessage 处理一条消息并始终返回非空回复。任何处理器错误都在这里
// 转换为用户可读文本，不会越过消息边界。
func (a *Agent) HandleMessage(ctx context.Context, msg Message) Reply {
	in, err := a.resolver.Resolve(ctx, msg.SessionID, msg.Text)
	if err != nil {
		return a.fail(ctx, msg.SessionID, "", err)
	}
	metrics.ObserveIntent(string(in.Kind), string(in.Source))
	a.log.Debug("意图已解析",
		slog.String("session_id", msg.SessionID),
		slog.String("kind", string(in.Kind)),
		slog.String("source", string(in.Source)),
	)

	text, err := a.dispatch(ctx, msg.SessionID, in)
	if err != nil {
		return a.fail(ctx, msg.SessionID, in.Kind, err)
	}
	if text == "" {
		text = GenericFailureText
	}
	return Reply{Text: text, Kind: in.Kind}
}

func (a *Agent) dispatch(ctx context.Context, sessionID string, in intent.Intent) (string, error) {
	switch in.Kind {
	case intent.KindStart:
		return a.handleStart(ctx, sessionID)
	case intent.KindHelp:
		return helpText(), nil
	case intent.KindBalance:
		return a.handleBalance(ctx, sessionID)
	case intent.KindTokens:
		return a.handleTokenBalances(ctx, sessionID)
	case intent.KindExport:
		return a.handleExport(ctx, sessionID)
	case intent.KindCancel:
		return a.handleCancel(ctx, sessionID)
	case intent.KindSwap, intent.KindBridge, intent.KindSend:
		if err := in.Validate(); err != nil {
			return "", err
		}
		return a.handleStage(ctx, sessionID, in)
	case intent.KindConfirm:
		return a.handleConfirm(ctx, sessionID)
	case intent.KindUnknownCommand:
		return UnknownCommandText, nil
	default:
		if in.Response != "" {
			return in.Response, nil
		}
		return FallbackText, nil
	}
}

// fail 渲染错误：公开错误直接展示，其余使用通用文案；需要告警的错误码派发告警。
func (a *Agent) fail(ctx context.Context, sessionID string, kind intent.Kind, err error) Reply {
	code := xerrors.CodeOf(err)
	a.log.Warn("消息处理失败",
		slog.String("session_id", sessionID),
		slog.String("kind", string(kind)),
		slog.String("error_code", string(code)),
		slog.String("error", err.Error()),
	)
	if xerrors.ShouldAlert(err) && a.alerter != nil {
		event := alerting.FromError(err, sessionID, "handle:"+string(kind))
		if kind == "" {
			event.Stage = "resolve"
		}
		if alertErr := a.alerter.Notify(context.WithoutCancel(ctx), event); alertErr != nil {
			a.log.Error("告警通知失败", slog.String("error", alertErr.Error()))
		}
	}
	text := GenericFailureText
	if msg, ok := xerrors.PublicMessage(err); ok && msg != "" {
		text = msg
	}
	return Reply{Text: text, Kind: kind, Err: err}
}
