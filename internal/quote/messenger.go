package quote

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"ChatWallet/internal/aggregator"
)

// BridgeSubmitter is the aggregator endpoint that relays cross-chain messages.
type BridgeSubmitter interface {
	SubmitBridge(ctx context.Context, req aggregator.BridgeRequest) (*aggregator.BridgeResponse, error)
}

// AggregatorMessenger relays bridges through the aggregator's bridge endpoint.
type AggregatorMessenger struct {
	Submitter BridgeSubmitter
}

// SendMessage implements Messenger.
func (m AggregatorMessenger) SendMessage(ctx context.Context, msg BridgeMessage) (string, error) {
	q := msg.Quote
	amountIn := "0"
	if q.AmountIn != nil {
		amountIn = q.AmountIn.String()
	}
	resp, err := m.Submitter.SubmitBridge(ctx, aggregator.BridgeRequest{
		QuoteID:    q.ProviderQuoteID,
		Sender:     msg.Sender.Hex(),
		Recipient:  q.Recipient.Hex(),
		SrcChainID: q.FromChainID,
		DstChainID: q.ToChainID,
		Token:      q.FromToken.Hex(),
		Amount:     amountIn,
		Signature:  hexutil.Encode(msg.Signature),
		Quote:      q.Payload,
	})
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}
