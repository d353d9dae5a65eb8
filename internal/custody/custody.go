// Package custody provisions and holds the signing keys behind every chat
// wallet. Keys live in an encrypted go-ethereum keystore and only leave it as
// signatures; no operation returns key bytes.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/web3"
	"ChatWallet/pkg/logger"
)

const (
	// CodeProvisionFailed marks a failure to create a new custodial key.
	CodeProvisionFailed xerrors.Code = "PROVISION_FAILED"
	// CodeKeyNotFound marks a key handle that the keystore does not hold.
	CodeKeyNotFound xerrors.Code = "KEY_NOT_FOUND"
)

func init() {
	xerrors.Register(CodeProvisionFailed, xerrors.Attributes{
		Message:   "wallet provisioning failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeKeyNotFound, xerrors.Attributes{
		Message:  "signing key not found",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Account is the public outcome of provisioning: the wallet address users see,
// the signer that controls it and an opaque handle for later signing.
type Account struct {
	Address       common.Address
	SignerAddress common.Address
	KeyHandle     string
	ChainID       uint64
}

// SmartAccountResolver maps a signer to the account address that holds funds.
type SmartAccountResolver interface {
	Resolve(ctx context.Context, signer common.Address, chainID uint64) (common.Address, error)
}

// IdentityResolver uses the signer itself as the wallet address.
type IdentityResolver struct{}

// Resolve implements SmartAccountResolver.
func (IdentityResolver) Resolve(_ context.Context, signer common.Address, _ uint64) (common.Address, error) {
	return signer, nil
}

// Config describes where keys are stored.
type Config struct {
	KeystoreDir string
	Passphrase  string
	LightScrypt bool
}

// Option customises the custodian.
type Option func(*Custodian)

// WithResolver swaps the smart-account resolver.
func WithResolver(resolver SmartAccountResolver) Option {
	return func(c *Custodian) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

// WithLogger overrides the audit logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Custodian) {
		if l != nil {
			c.audit = l
		}
	}
}

// Custodian provisions keys and signs on their behalf.
type Custodian struct {
	ks         *keystore.KeyStore
	passphrase string
	resolver   SmartAccountResolver
	audit      *slog.Logger
}

// New opens (or creates) the keystore directory.
func New(cfg Config, opts ...Option) (*Custodian, error) {
	dir := strings.TrimSpace(cfg.KeystoreDir)
	if dir == "" {
		return nil, errors.New("keystore directory is required")
	}
	if cfg.Passphrase == "" {
		return nil, errors.New("keystore passphrase is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}
	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if cfg.LightScrypt {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	c := &Custodian{
		ks:         keystore.NewKeyStore(dir, scryptN, scryptP),
		passphrase: cfg.Passphrase,
		resolver:   IdentityResolver{},
		audit:      logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Provision creates a fresh key and resolves the wallet address on chainID.
func (c *Custodian) Provision(ctx context.Context, chainID uint64) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, xerrors.Wrap(CodeProvisionFailed, err, "")
	}
	acct, err := c.ks.NewAccount(c.passphrase)
	if err != nil {
		return Account{}, xerrors.Wrap(CodeProvisionFailed, err, "")
	}
	address, err := c.resolver.Resolve(ctx, acct.Address, chainID)
	if err != nil {
		return Account{}, xerrors.Wrap(CodeProvisionFailed, err, "resolve smart account")
	}
	c.audit.Info("custodial key provisioned",
		slog.String("signer", acct.Address.Hex()),
		slog.String("address", address.Hex()),
		slog.Uint64("chain_id", chainID),
	)
	return Account{
		Address:       address,
		SignerAddress: acct.Address,
		KeyHandle:     acct.Address.Hex(),
		ChainID:       chainID,
	}, nil
}

// Signer returns a web3.Signer bound to the key behind handle.
func (c *Custodian) Signer(handle string) (web3.Signer, error) {
	acct, err := c.find(handle)
	if err != nil {
		return nil, err
	}
	return &accountSigner{custodian: c, account: acct}, nil
}

// SignHash signs a 32 byte digest with the key behind handle.
func (c *Custodian) SignHash(ctx context.Context, handle string, hash []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(hash) != common.HashLength {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "digest must be 32 bytes")
	}
	acct, err := c.find(handle)
	if err != nil {
		return nil, err
	}
	sig, err := c.ks.SignHashWithPassphrase(acct, c.passphrase, hash)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig, nil
}

// Has reports whether the keystore holds handle.
func (c *Custodian) Has(handle string) bool {
	if !common.IsHexAddress(handle) {
		return false
	}
	return c.ks.HasAddress(common.HexToAddress(handle))
}

func (c *Custodian) find(handle string) (accounts.Account, error) {
	if !common.IsHexAddress(handle) {
		return accounts.Account{}, xerrors.New(CodeKeyNotFound, "", xerrors.WithMetadata("handle", handle))
	}
	acct, err := c.ks.Find(accounts.Account{Address: common.HexToAddress(handle)})
	if err != nil {
		return accounts.Account{}, xerrors.Wrap(CodeKeyNotFound, err, "", xerrors.WithMetadata("handle", handle))
	}
	return acct, nil
}

type accountSigner struct {
	custodian *Custodian
	account   accounts.Account
}

func (s *accountSigner) Address() common.Address {
	return s.account.Address
}

func (s *accountSigner) SignTx(ctx context.Context, tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.custodian.ks.SignTxWithPassphrase(s.account, s.custodian.passphrase, tx, chainID)
}
