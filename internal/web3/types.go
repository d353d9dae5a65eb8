package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot summarises the head of a chain for operators.
type ChainSnapshot struct {
	ChainID     uint64
	BlockNumber uint64
	Notes       string
}

// TransferRequest moves Amount of Token from From to To. Token is either an
// ERC-20 contract address or the registry's native sentinel address.
type TransferRequest struct {
	From   common.Address
	To     common.Address
	Token  common.Address
	Amount *big.Int
}

// Signer signs transactions for one custodial account. Key material stays
// behind the implementation.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Client defines the chain capabilities the wallet needs from any EVM network.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Snapshot(ctx context.Context) (ChainSnapshot, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Transfer(ctx context.Context, signer Signer, req TransferRequest) (common.Hash, error)
	Close()
}
