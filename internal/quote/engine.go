package quote

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"ChatWallet/internal/aggregator"
	"ChatWallet/internal/amount"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/registry"
	"ChatWallet/internal/web3"
	"ChatWallet/pkg/logger"
)

// DefaultTTL bounds how long a staged quote stays executable.
const DefaultTTL = 5 * time.Minute

// Aggregator is the swap/bridge pricing and order service.
type Aggregator interface {
	Quote(ctx context.Context, params aggregator.QuoteParams) (*aggregator.QuoteResponse, error)
	PlaceOrder(ctx context.Context, req aggregator.OrderRequest) (*aggregator.OrderResponse, error)
}

// Messenger delivers a signed cross-chain transfer.
type Messenger interface {
	SendMessage(ctx context.Context, msg BridgeMessage) (string, error)
}

// BridgeMessage is what the messenger relays for a confirmed bridge.
type BridgeMessage struct {
	Quote     Quote
	Sender    common.Address
	Signature []byte
}

// Custody signs on behalf of a wallet without exposing its key.
type Custody interface {
	SignHash(ctx context.Context, handle string, hash []byte) ([]byte, error)
	Signer(handle string) (web3.Signer, error)
}

// Chains resolves a chain client by id.
type Chains interface {
	Client(chainID uint64) (web3.Client, bool)
}

// Option customises the engine.
type Option func(*Engine)

// WithTTL sets the quote lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCustody wires the signing capability used by executions.
func WithCustody(c Custody) Option {
	return func(e *Engine) {
		e.custody = c
	}
}

// WithMessenger wires the cross-chain messaging capability.
func WithMessenger(m Messenger) Option {
	return func(e *Engine) {
		e.messenger = m
	}
}

// WithChains wires per-chain RPC clients used by sends.
func WithChains(c Chains) Option {
	return func(e *Engine) {
		e.chains = c
	}
}

// WithLogger overrides the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine prices and executes quotes.
type Engine struct {
	registry   *registry.Registry
	aggregator Aggregator
	custody    Custody
	messenger  Messenger
	chains     Chains
	ttl        time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// NewEngine builds a quote engine on top of the registry and the aggregator.
func NewEngine(reg *registry.Registry, agg Aggregator, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		aggregator: agg,
		ttl:        DefaultTTL,
		now:        time.Now,
		log:        logger.Named("quote"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// QuoteSwap prices a cross-chain swap of two distinct tokens.
func (e *Engine) QuoteSwap(ctx context.Context, acct Account, req SwapRequest) (Quote, error) {
	fromChain, err := e.lookupChain(req.FromChain)
	if err != nil {
		return Quote{}, err
	}
	toChain, err := e.lookupChain(req.ToChain)
	if err != nil {
		return Quote{}, err
	}
	if fromChain.ID == toChain.ID {
		return Quote{}, xerrors.New(CodeSameChain,
			fmt.Sprintf("Same-chain swaps are not supported: both sides are on %s. Pick two different chains.", fromChain.Name))
	}

	fromToken, err := e.resolveToken(req.FromToken, fromChain)
	if err != nil {
		return Quote{}, err
	}
	toToken, err := e.resolveToken(req.ToToken, toChain)
	if err != nil {
		return Quote{}, err
	}

	return e.price(ctx, acct, KindSwap, req.Amount, fromChain, toChain, req.FromToken, req.ToToken, fromToken, toToken)
}

// QuoteBridge prices moving one token from one chain to another.
func (e *Engine) QuoteBridge(ctx context.Context, acct Account, req BridgeRequest) (Quote, error) {
	fromChain, err := e.chainOrDefault(req.FromChain, acct.ChainID)
	if err != nil {
		return Quote{}, err
	}
	toChain, err := e.lookupChain(req.ToChain)
	if err != nil {
		return Quote{}, err
	}
	if fromChain.ID == toChain.ID {
		return Quote{}, xerrors.New(CodeSameChain,
			fmt.Sprintf("Your %s is already on %s. Pick a different destination chain.", strings.ToUpper(req.Token), toChain.Name))
	}

	fromToken, err := e.resolveToken(req.Token, fromChain)
	if err != nil {
		return Quote{}, err
	}
	toToken, err := e.resolveToken(req.Token, toChain)
	if err != nil {
		return Quote{}, err
	}

	return e.price(ctx, acct, KindBridge, req.Amount, fromChain, toChain, req.Token, req.Token, fromToken, toToken)
}

// QuoteSend stages a plain transfer. No aggregator is involved; the output
// equals the input.
func (e *Engine) QuoteSend(_ context.Context, acct Account, req SendRequest) (Quote, error) {
	chain, err := e.chainOrDefault(req.Chain, acct.ChainID)
	if err != nil {
		return Quote{}, err
	}
	recipient := strings.TrimSpace(req.Recipient)
	if !common.IsHexAddress(recipient) {
		return Quote{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("%q is not a valid recipient address.", recipient))
	}
	to := common.HexToAddress(recipient)
	if to == (common.Address{}) {
		return Quote{}, xerrors.New(xerrors.CodeInvalidArgument, "Refusing to send to the zero address.")
	}
	token, err := e.resolveToken(req.Token, chain)
	if err != nil {
		return Quote{}, err
	}
	decimals, err := e.registry.DecimalsOf(req.Token)
	if err != nil {
		return Quote{}, e.unsupportedToken(req.Token, chain)
	}
	amountIn, err := amount.ToSmallestUnit(req.Amount, decimals)
	if err != nil {
		return Quote{}, err
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Token))
	display := amount.FromSmallestUnit(amountIn, decimals)
	now := e.now()
	return Quote{
		ID:               uuid.NewString(),
		Kind:             KindSend,
		FromChainID:      chain.ID,
		ToChainID:        chain.ID,
		FromToken:        token,
		ToToken:          token,
		FromSymbol:       symbol,
		ToSymbol:         symbol,
		AmountIn:         amountIn,
		AmountInDisplay:  display,
		AmountOut:        new(big.Int).Set(amountIn),
		AmountOutDisplay: display,
		Recipient:        to,
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.ttl),
	}, nil
}

func (e *Engine) price(
	ctx context.Context,
	acct Account,
	kind Kind,
	rawAmount string,
	fromChain, toChain registry.Chain,
	fromSymbol, toSymbol string,
	fromToken, toToken common.Address,
) (Quote, error) {
	fromDecimals, err := e.registry.DecimalsOf(fromSymbol)
	if err != nil {
		return Quote{}, e.unsupportedToken(fromSymbol, fromChain)
	}
	toDecimals, err := e.registry.DecimalsOf(toSymbol)
	if err != nil {
		return Quote{}, e.unsupportedToken(toSymbol, toChain)
	}
	amountIn, err := amount.ToSmallestUnit(rawAmount, fromDecimals)
	if err != nil {
		return Quote{}, err
	}

	resp, err := e.aggregator.Quote(ctx, aggregator.QuoteParams{
		SrcChainID: fromChain.ID,
		DstChainID: toChain.ID,
		SrcToken:   fromToken,
		DstToken:   toToken,
		Amount:     amountIn,
		Wallet:     acct.Address,
	})
	if err != nil {
		e.log.Warn("aggregator quote failed",
			slog.String("kind", string(kind)),
			slog.Uint64("src_chain", fromChain.ID),
			slog.Uint64("dst_chain", toChain.ID),
			slog.String("error_code", string(xerrors.CodeOf(err))),
		)
		return Quote{}, xerrors.Wrap(CodeQuoteUnavailable, err, "")
	}
	if resp == nil || resp.DstAmount == nil || resp.DstAmount.Sign() <= 0 {
		return Quote{}, xerrors.New(CodeQuoteUnavailable, "")
	}
	if resp.SecretsCount < 0 || resp.SecretsCount > aggregator.MaxSecrets {
		e.log.Warn("aggregator quote rejected",
			slog.String("kind", string(kind)),
			slog.Int("fills", resp.SecretsCount),
		)
		return Quote{}, xerrors.New(CodeQuoteUnavailable, "", xerrors.WithMetadata("fills", strconv.Itoa(resp.SecretsCount)))
	}

	now := e.now()
	return Quote{
		ID:               uuid.NewString(),
		Kind:             kind,
		FromChainID:      fromChain.ID,
		ToChainID:        toChain.ID,
		FromToken:        fromToken,
		ToToken:          toToken,
		FromSymbol:       strings.ToUpper(strings.TrimSpace(fromSymbol)),
		ToSymbol:         strings.ToUpper(strings.TrimSpace(toSymbol)),
		AmountIn:         amountIn,
		AmountInDisplay:  amount.FromSmallestUnit(amountIn, fromDecimals),
		AmountOut:        resp.DstAmount,
		AmountOutDisplay: amount.FromSmallestUnit(resp.DstAmount, toDecimals),
		Recipient:        acct.Address,
		ProviderQuoteID:  resp.QuoteID,
		Payload:          resp.Raw,
		SecretsCount:     resp.SecretsCount,
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.ttl),
	}, nil
}

func (e *Engine) lookupChain(name string) (registry.Chain, error) {
	chain, ok := e.registry.LookupChain(name)
	if !ok {
		return registry.Chain{}, xerrors.New(CodeUnsupportedChain,
			fmt.Sprintf("Unsupported chain %q. Supported chains: %s.", strings.TrimSpace(name), e.chainNames()))
	}
	return chain, nil
}

func (e *Engine) chainOrDefault(name string, fallback uint64) (registry.Chain, error) {
	if strings.TrimSpace(name) == "" {
		if chain, ok := e.registry.Chain(fallback); ok {
			return chain, nil
		}
	}
	return e.lookupChain(name)
}

func (e *Engine) resolveToken(symbol string, chain registry.Chain) (common.Address, error) {
	addr, err := e.registry.ResolveToken(symbol, chain.ID)
	if err != nil {
		return common.Address{}, e.unsupportedToken(symbol, chain)
	}
	return addr, nil
}

func (e *Engine) unsupportedToken(symbol string, chain registry.Chain) error {
	return xerrors.New(CodeUnsupportedToken,
		fmt.Sprintf("Unsupported token %s on %s. Supported tokens: %s.",
			strings.ToUpper(strings.TrimSpace(symbol)), chain.Name, strings.Join(e.registry.Symbols(), ", ")))
}

func (e *Engine) chainNames() string {
	chains := e.registry.Chains()
	names := make([]string, 0, len(chains))
	for _, chain := range chains {
		names = append(names, chain.Name)
	}
	return strings.Join(names, ", ")
}
