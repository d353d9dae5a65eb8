package quote

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"ChatWallet/internal/aggregator"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/web3"
	"ChatWallet/pkg/logger"
)

// ExecuteSwap places a hash-locked order for a staged swap. The caller must
// have already removed q from the wallet.
func (e *Engine) ExecuteSwap(ctx context.Context, acct Account, q Quote) (Receipt, error) {
	if err := e.checkExecutable(q, KindSwap); err != nil {
		return Receipt{}, err
	}
	if e.custody == nil {
		return Receipt{}, e.executionFailed(q, fmt.Errorf("custody not configured"))
	}

	count := q.SecretsCount
	if count <= 0 {
		count = 1
	}
	// TODO: persist the preimages so the fill watcher can disclose them.
	secrets, err := aggregator.NewSecrets(count)
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}
	hashLock := secrets.HashLock()
	digest := aggregator.OrderDigest(q.ProviderQuoteID, acct.Address, hashLock)
	sig, err := e.custody.SignHash(ctx, acct.KeyHandle, digest.Bytes())
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}

	hashes := secrets.Hashes()
	encoded := make([]string, len(hashes))
	for i, h := range hashes {
		encoded[i] = h.Hex()
	}
	resp, err := e.aggregator.PlaceOrder(ctx, aggregator.OrderRequest{
		QuoteID:      q.ProviderQuoteID,
		Maker:        acct.Address.Hex(),
		SrcChainID:   q.FromChainID,
		HashLock:     hashLock.Hex(),
		SecretHashes: encoded,
		Signature:    hexutil.Encode(sig),
		Quote:        q.Payload,
	})
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}
	e.audit(q, resp.OrderHash)
	logger.Audit().Warn("hash-lock preimages not stored",
		slog.String("quote_id", q.ID),
		slog.String("order", resp.OrderHash),
		slog.Int("preimages", count),
		slog.Bool("preimages_stored", false),
	)
	return Receipt{Kind: KindSwap, Reference: resp.OrderHash, Quote: q}, nil
}

// ExecuteBridge signs a staged bridge and hands it to the messenger.
func (e *Engine) ExecuteBridge(ctx context.Context, acct Account, q Quote) (Receipt, error) {
	if err := e.checkExecutable(q, KindBridge); err != nil {
		return Receipt{}, err
	}
	if e.custody == nil || e.messenger == nil {
		return Receipt{}, e.executionFailed(q, fmt.Errorf("bridge execution not configured"))
	}

	digest := BridgeDigest(q, acct.Address)
	sig, err := e.custody.SignHash(ctx, acct.KeyHandle, digest.Bytes())
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}
	ref, err := e.messenger.SendMessage(ctx, BridgeMessage{Quote: q, Sender: acct.Address, Signature: sig})
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}
	e.audit(q, ref)
	return Receipt{Kind: KindBridge, Reference: ref, Quote: q}, nil
}

// ExecuteSend signs and broadcasts a staged transfer.
func (e *Engine) ExecuteSend(ctx context.Context, acct Account, q Quote) (Receipt, error) {
	if err := e.checkExecutable(q, KindSend); err != nil {
		return Receipt{}, err
	}
	if e.custody == nil || e.chains == nil {
		return Receipt{}, e.executionFailed(q, fmt.Errorf("send execution not configured"))
	}
	client, ok := e.chains.Client(q.FromChainID)
	if !ok {
		return Receipt{}, e.executionFailed(q, fmt.Errorf("no rpc client for chain %d", q.FromChainID))
	}
	signer, err := e.custody.Signer(acct.KeyHandle)
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}
	hash, err := client.Transfer(ctx, signer, web3.TransferRequest{
		From:   signer.Address(),
		To:     q.Recipient,
		Token:  q.FromToken,
		Amount: q.AmountIn,
	})
	if err != nil {
		return Receipt{}, e.executionFailed(q, err)
	}
	e.audit(q, hash.Hex())
	return Receipt{Kind: KindSend, Reference: hash.Hex(), Quote: q}, nil
}

// BridgeDigest is the message the wallet signs to authorise a bridge.
func BridgeDigest(q Quote, sender common.Address) common.Hash {
	var chains [16]byte
	binary.BigEndian.PutUint64(chains[:8], q.FromChainID)
	binary.BigEndian.PutUint64(chains[8:], q.ToChainID)
	var amountIn []byte
	if q.AmountIn != nil {
		amountIn = q.AmountIn.Bytes()
	}
	return crypto.Keccak256Hash([]byte(q.ProviderQuoteID), sender.Bytes(), q.FromToken.Bytes(), chains[:], amountIn)
}

func (e *Engine) checkExecutable(q Quote, kind Kind) error {
	if q.Kind != kind {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("quote %s is a %s, not a %s", q.ID, q.Kind, kind),
			xerrors.WithPublic(false))
	}
	if q.Expired(e.now()) {
		return xerrors.New(CodeQuoteExpired, "", xerrors.WithMetadata("quote_id", q.ID))
	}
	return nil
}

func (e *Engine) executionFailed(q Quote, cause error) error {
	e.log.Error("quote execution failed",
		slog.String("quote_id", q.ID),
		slog.String("kind", string(q.Kind)),
		slog.String("error", cause.Error()),
	)
	return xerrors.Wrap(CodeExecutionFailed, cause, "",
		xerrors.WithMetadata("quote_id", q.ID),
		xerrors.WithMetadata("kind", string(q.Kind)),
	)
}

func (e *Engine) audit(q Quote, reference string) {
	logger.Audit().Info("quote executed",
		slog.String("quote_id", q.ID),
		slog.String("kind", string(q.Kind)),
		slog.Uint64("from_chain", q.FromChainID),
		slog.Uint64("to_chain", q.ToChainID),
		slog.String("amount_in", q.AmountInDisplay),
		slog.String("from_symbol", q.FromSymbol),
		slog.String("reference", reference),
	)
}
