package agent

import (
	"context"
	"log/slog"
	"time"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/intent"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/internal/quote"
	"ChatWallet/internal/wallet"
	"ChatWallet/pkg/logger"
)

func (a *Agent) handleStart(ctx context.Context, sessionID string) (string, error) {
	record, created, err := a.wallets.CreateWallet(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if created {
		return newWalletText(record.Address.Hex()), nil
	}
	return existingWalletText(record.Address.Hex()), nil
}

func (a *Agent) requireWallet(ctx context.Context, sessionID string) (*wallet.Record, error) {
	record, err := a.wallets.GetWallet(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, xerrors.New(wallet.CodeNoWallet, "")
	}
	return record, nil
}

func (a *Agent) handleBalance(ctx context.Context, sessionID string) (string, error) {
	record, err := a.requireWallet(ctx, sessionID)
	if err != nil {
		return "", err
	}
	symbol := "ETH"
	if chain, ok := a.registry.Chain(record.ChainID); ok && chain.NativeSymbol != "" {
		symbol = chain.NativeSymbol
	}
	balance, err := a.nativeBalance(ctx, record.ChainID, record)
	if err != nil {
		return "", err
	}
	return nativeBalanceText(balance, symbol), nil
}

func (a *Agent) handleExport(_ context.Context, sessionID string) (string, error) {
	logger.Audit().Warn("导出私钥请求已拒绝", slog.String("session_id", sessionID))
	return ExportRefusedText, nil
}

func (a *Agent) handleCancel(ctx context.Context, sessionID string) (string, error) {
	var text string
	err := a.wallets.WithSession(ctx, sessionID, func(s *wallet.Session) error {
		record, err := s.Wallet(ctx)
		if err != nil {
			return err
		}
		if record == nil {
			return xerrors.New(wallet.CodeNoWallet, "")
		}
		if record.Pending == nil {
			text = NothingToCancel
			return nil
		}
		kind := record.Pending.Kind
		if _, err := s.Clear(ctx, ""); err != nil {
			return err
		}
		text = cancelledText(kind)
		return nil
	})
	return text, err
}

// handleStage 在锁外报价，在会话锁内落到唯一的待确认槽位。
func (a *Agent) handleStage(ctx context.Context, sessionID string, in intent.Intent) (string, error) {
	record, err := a.requireWallet(ctx, sessionID)
	if err != nil {
		return "", err
	}
	q, err := a.price(ctx, record.Account(), in)
	if err != nil {
		return "", err
	}

	var replaced *quote.Kind
	err = a.wallets.WithSession(ctx, sessionID, func(s *wallet.Session) error {
		prev, err := s.Stage(ctx, q.Kind, q)
		if err != nil {
			return err
		}
		if prev != nil {
			kind := prev.Kind
			replaced = &kind
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return quoteText(a.registry, q, replaced), nil
}

func (a *Agent) price(ctx context.Context, acct quote.Account, in intent.Intent) (quote.Quote, error) {
	p := in.Params
	started := time.Now()
	var (
		q   quote.Quote
		err error
	)
	switch in.Kind {
	case intent.KindSwap:
		q, err = a.quotes.QuoteSwap(ctx, acct, quote.SwapRequest{
			Amount:    p.Amount,
			FromToken: p.FromToken,
			ToToken:   p.ToToken,
			FromChain: p.FromChain,
			ToChain:   p.ToChain,
		})
	case intent.KindBridge:
		q, err = a.quotes.QuoteBridge(ctx, acct, quote.BridgeRequest{
			Amount:    p.Amount,
			Token:     p.Token,
			FromChain: p.FromChain,
			ToChain:   p.ToChain,
		})
	default:
		q, err = a.quotes.QuoteSend(ctx, acct, quote.SendRequest{
			Amount:    p.Amount,
			Token:     p.Token,
			Recipient: p.Recipient,
			Chain:     p.Chain,
		})
	}
	metrics.ObserveUpstream("quote:"+string(in.Kind), err, time.Since(started))
	return q, err
}

// handleConfirm 在会话锁内先清空槽位再执行，执行期间新的报价无法覆盖。
func (a *Agent) handleConfirm(ctx context.Context, sessionID string) (string, error) {
	var receipt quote.Receipt
	err := a.wallets.WithSession(ctx, sessionID, func(s *wallet.Session) error {
		record, op, err := s.Take(ctx)
		if err != nil {
			return err
		}
		defer a.balances.Invalidate(sessionID)

		acct := record.Account()
		started := time.Now()
		switch op.Kind {
		case quote.KindSwap:
			receipt, err = a.quotes.ExecuteSwap(ctx, acct, op.Quote)
		case quote.KindBridge:
			receipt, err = a.quotes.ExecuteBridge(ctx, acct, op.Quote)
		case quote.KindSend:
			receipt, err = a.quotes.ExecuteSend(ctx, acct, op.Quote)
		default:
			err = xerrors.New(xerrors.CodeInvalidArgument, "unknown pending operation "+string(op.Kind),
				xerrors.WithPublic(false))
		}
		metrics.ObserveUpstream("execute:"+string(op.Kind), err, time.Since(started))
		return err
	})
	if err != nil {
		return "", err
	}
	return receiptText(receipt), nil
}
