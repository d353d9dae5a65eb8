// Package quote prices swaps, bridges and sends against the registry and the
// aggregator, and executes staged quotes once the user confirms them.
package quote

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "ChatWallet/internal/errors"
)

// Kind names the operation a quote was produced for.
type Kind string

const (
	KindSwap   Kind = "swap"
	KindBridge Kind = "bridge"
	KindSend   Kind = "send"
)

const (
	CodeUnsupportedToken xerrors.Code = "UNSUPPORTED_TOKEN"
	CodeUnsupportedChain xerrors.Code = "UNSUPPORTED_CHAIN"
	CodeSameChain        xerrors.Code = "SAME_CHAIN"
	CodeQuoteUnavailable xerrors.Code = "QUOTE_UNAVAILABLE"
	CodeQuoteExpired     xerrors.Code = "QUOTE_EXPIRED"
	CodeExecutionFailed  xerrors.Code = "EXECUTION_FAILED"
)

func init() {
	xerrors.Register(CodeUnsupportedToken, xerrors.Attributes{
		Message:  "unsupported token",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeUnsupportedChain, xerrors.Attributes{
		Message:  "unsupported chain",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeSameChain, xerrors.Attributes{
		Message:  "Source and destination chains must differ.",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeQuoteUnavailable, xerrors.Attributes{
		Message:   "No quote is available for this route right now. Please try again later.",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Public:    true,
	})
	xerrors.Register(CodeQuoteExpired, xerrors.Attributes{
		Message:  "This quote has expired. Please request a new one.",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeExecutionFailed, xerrors.Attributes{
		Message:  "Execution failed. The staged operation was cleared, please request a new quote.",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
		Public:   true,
	})
}

// Quote is the immutable snapshot staged on a wallet between quoting and
// confirmation. Amounts are in the smallest unit of their token.
type Quote struct {
	ID               string          `json:"id"`
	Kind             Kind            `json:"kind"`
	FromChainID      uint64          `json:"from_chain_id"`
	ToChainID        uint64          `json:"to_chain_id"`
	FromToken        common.Address  `json:"from_token"`
	ToToken          common.Address  `json:"to_token"`
	FromSymbol       string          `json:"from_symbol"`
	ToSymbol         string          `json:"to_symbol"`
	AmountIn         *big.Int        `json:"amount_in"`
	AmountInDisplay  string          `json:"amount_in_display"`
	AmountOut        *big.Int        `json:"amount_out"`
	AmountOutDisplay string          `json:"amount_out_display"`
	Recipient        common.Address  `json:"recipient"`
	ProviderQuoteID  string          `json:"provider_quote_id,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	SecretsCount     int             `json:"secrets_count,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// Expired reports whether the quote can no longer be executed at now.
func (q Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

// Account is the part of a wallet record the engine needs.
type Account struct {
	Address   common.Address
	KeyHandle string
	ChainID   uint64
}

// SwapRequest carries the unresolved parameters of a swap.
type SwapRequest struct {
	Amount    string
	FromToken string
	ToToken   string
	FromChain string
	ToChain   string
}

// BridgeRequest moves one token across chains. An empty FromChain means the
// wallet's provisioning chain.
type BridgeRequest struct {
	Amount    string
	Token     string
	FromChain string
	ToChain   string
}

// SendRequest transfers a token to another address on one chain. An empty
// Chain means the wallet's provisioning chain.
type SendRequest struct {
	Amount    string
	Token     string
	Recipient string
	Chain     string
}

// Receipt is the outcome of executing a quote.
type Receipt struct {
	Kind      Kind
	Reference string
	Quote     Quote
}
