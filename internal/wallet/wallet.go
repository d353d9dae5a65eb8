// Package wallet owns the per-session wallet records and the single pending
// operation slot staged on each of them.
package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/quote"
)

const (
	CodeNoWallet           xerrors.Code = "NO_WALLET"
	CodeNoPendingOperation xerrors.Code = "NO_PENDING_OPERATION"
	CodeStoreUnavailable   xerrors.Code = "STORE_UNAVAILABLE"
	CodeWalletConflict     xerrors.Code = "WALLET_CONFLICT"
)

func init() {
	xerrors.Register(CodeNoWallet, xerrors.Attributes{
		Message:  "Please use /start to create a wallet first!",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeNoPendingOperation, xerrors.Attributes{
		Message:  "There is nothing to confirm. Request a swap, bridge or send first.",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeStoreUnavailable, xerrors.Attributes{
		Message:   "wallet store unavailable",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeWalletConflict, xerrors.Attributes{
		Message:  "wallet already exists for session",
		Severity: xerrors.SeverityWarning,
	})
}

var (
	// ErrNotFound is returned by stores when a session has no wallet.
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "wallet not found")
	// ErrWalletConflict is returned by Store.Create when the session already has a wallet.
	ErrWalletConflict = xerrors.New(CodeWalletConflict, "")
)

// PendingOperation is the single staged quote awaiting confirmation.
type PendingOperation struct {
	Kind  quote.Kind  `json:"kind"`
	Quote quote.Quote `json:"quote"`
}

// Record is the persisted wallet of one chat session. KeyHandle identifies the
// signing key inside custody; it is not key material.
type Record struct {
	SessionID     string            `json:"session_id"`
	Address       common.Address    `json:"address"`
	SignerAddress common.Address    `json:"signer_address"`
	KeyHandle     string            `json:"key_handle"`
	ChainID       uint64            `json:"chain_id"`
	Pending       *PendingOperation `json:"pending,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Account projects the record onto what the quote engine needs.
func (r Record) Account() quote.Account {
	return quote.Account{Address: r.Address, KeyHandle: r.KeyHandle, ChainID: r.ChainID}
}

// Clone returns a copy that shares nothing mutable with r.
func (r Record) Clone() Record {
	if r.Pending != nil {
		pending := *r.Pending
		r.Pending = &pending
	}
	return r
}

// Store persists wallet records keyed by session id.
type Store interface {
	Get(ctx context.Context, sessionID string) (Record, error)
	Create(ctx context.Context, record Record) error
	Save(ctx context.Context, record Record) error
	Close() error
}

// Locker serialises state-mutating work per key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
