package quote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"ChatWallet/internal/aggregator"
	"ChatWallet/internal/amount"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/registry"
	"ChatWallet/internal/web3"
	"ChatWallet/pkg/logger"
)

type fakeAggregator struct {
	mu       sync.Mutex
	quotes   []aggregator.QuoteParams
	orders   []aggregator.OrderRequest
	bridges  []aggregator.BridgeRequest
	response *aggregator.QuoteResponse
	quoteErr error
	orderErr error
}

func (f *fakeAggregator) Quote(_ context.Context, params aggregator.QuoteParams) (*aggregator.QuoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, params)
	return f.response, f.quoteErr
}

func (f *fakeAggregator) PlaceOrder(_ context.Context, req aggregator.OrderRequest) (*aggregator.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return &aggregator.OrderResponse{OrderHash: "0xorder"}, nil
}

func (f *fakeAggregator) SubmitBridge(_ context.Context, req aggregator.BridgeRequest) (*aggregator.BridgeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bridges = append(f.bridges, req)
	return &aggregator.BridgeResponse{MessageID: "msg-1"}, nil
}

type fakeSigner struct{ addr common.Address }

func (s fakeSigner) Address() common.Address { return s.addr }
func (s fakeSigner) SignTx(_ context.Context, tx *coretypes.Transaction, _ *big.Int) (*coretypes.Transaction, error) {
	return tx, nil
}

type fakeCustody struct {
	signed [][]byte
}

func (f *fakeCustody) SignHash(_ context.Context, _ string, hash []byte) ([]byte, error) {
	f.signed = append(f.signed, append([]byte(nil), hash...))
	return []byte{0x01, 0x02}, nil
}

func (f *fakeCustody) Signer(string) (web3.Signer, error) {
	return fakeSigner{addr: testAccount.Address}, nil
}

type fakeChainClient struct {
	web3.Client
	transfers []web3.TransferRequest
}

func (f *fakeChainClient) Transfer(_ context.Context, _ web3.Signer, req web3.TransferRequest) (common.Hash, error) {
	f.transfers = append(f.transfers, req)
	return common.HexToHash("0xabc"), nil
}

type fakeChains map[uint64]web3.Client

func (f fakeChains) Client(id uint64) (web3.Client, bool) {
	c, ok := f[id]
	return c, ok
}

var testAccount = Account{
	Address:   common.HexToAddress("0x00000000000000000000000000000000000000a1"),
	KeyHandle: "0x00000000000000000000000000000000000000a1",
	ChainID:   1,
}

func newTestEngine(agg *fakeAggregator, now *time.Time, opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return *now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewEngine(registry.Default(), agg, append(base, opts...)...)
}

func wethOut() *big.Int {
	out, _ := new(big.Int).SetString("41250000000000000", 10)
	return out
}

func TestQuoteSwapStagesCrossChainQuote(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	agg := &fakeAggregator{response: &aggregator.QuoteResponse{
		QuoteID:      "q-1",
		DstAmount:    wethOut(),
		SecretsCount: 1,
		Raw:          json.RawMessage(`{"quoteId":"q-1"}`),
	}}
	engine := newTestEngine(agg, &now)

	q, err := engine.QuoteSwap(context.Background(), testAccount, SwapRequest{
		Amount:    "100",
		FromToken: "usdc",
		ToToken:   "WETH",
		FromChain: "Ethereum",
		ToChain:   "polygon",
	})
	if err != nil {
		t.Fatalf("quote swap: %v", err)
	}

	if len(agg.quotes) != 1 {
		t.Fatalf("expected one aggregator call, got %d", len(agg.quotes))
	}
	params := agg.quotes[0]
	if params.SrcChainID != 1 || params.DstChainID != 137 || params.Amount.String() != "100000000" {
		t.Fatalf("unexpected quote params %+v", params)
	}
	if params.DstToken != common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619") {
		t.Fatalf("weth must resolve on the destination chain, got %s", params.DstToken.Hex())
	}
	if q.Kind != KindSwap || q.AmountOutDisplay != "0.04125" || q.FromSymbol != "USDC" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if !q.ExpiresAt.Equal(now.Add(DefaultTTL)) || q.ID == "" {
		t.Fatalf("quote must carry an id and an expiry")
	}
}

func TestQuoteSwapRejections(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		req  SwapRequest
		code xerrors.Code
	}{
		{"same chain", SwapRequest{Amount: "1", FromToken: "USDC", ToToken: "WETH", FromChain: "eth", ToChain: "mainnet"}, CodeSameChain},
		{"unknown chain", SwapRequest{Amount: "1", FromToken: "USDC", ToToken: "WETH", FromChain: "solana", ToChain: "polygon"}, CodeUnsupportedChain},
		{"missing pair", SwapRequest{Amount: "1", FromToken: "USDC", ToToken: "USDT", FromChain: "polygon", ToChain: "base"}, CodeUnsupportedToken},
		{"unknown symbol", SwapRequest{Amount: "1", FromToken: "DOGE", ToToken: "WETH", FromChain: "ethereum", ToChain: "polygon"}, CodeUnsupportedToken},
		{"bad amount", SwapRequest{Amount: "-3", FromToken: "USDC", ToToken: "WETH", FromChain: "ethereum", ToChain: "polygon"}, amount.CodeInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := &fakeAggregator{response: &aggregator.QuoteResponse{DstAmount: big.NewInt(1)}}
			engine := newTestEngine(agg, &now)
			_, err := engine.QuoteSwap(context.Background(), testAccount, tc.req)
			if !xerrors.HasCode(err, tc.code) {
				t.Fatalf("error = %v, want %s", err, tc.code)
			}
			if _, ok := xerrors.PublicMessage(err); !ok {
				t.Fatalf("rejection must be renderable to the user")
			}
			if len(agg.quotes) != 0 {
				t.Fatalf("aggregator must not be called on rejection")
			}
		})
	}
}

func TestUnsupportedTokenListsKnownSymbols(t *testing.T) {
	now := time.Now()
	engine := newTestEngine(&fakeAggregator{}, &now)
	_, err := engine.QuoteSwap(context.Background(), testAccount, SwapRequest{
		Amount: "1", FromToken: "DOGE", ToToken: "WETH", FromChain: "ethereum", ToChain: "polygon",
	})
	msg, _ := xerrors.PublicMessage(err)
	if !strings.Contains(msg, "DOGE") || !strings.Contains(msg, "USDC") || !strings.Contains(msg, "WBTC") {
		t.Fatalf("message should name the token and list known symbols: %q", msg)
	}
}

func TestQuoteUnavailable(t *testing.T) {
	now := time.Now()
	req := SwapRequest{Amount: "1", FromToken: "USDC", ToToken: "WETH", FromChain: "ethereum", ToChain: "arbitrum"}

	missing := newTestEngine(&fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "q"}}, &now)
	if _, err := missing.QuoteSwap(context.Background(), testAccount, req); !xerrors.HasCode(err, CodeQuoteUnavailable) {
		t.Fatalf("missing destination amount: got %v", err)
	}

	failing := newTestEngine(&fakeAggregator{quoteErr: errors.New("boom")}, &now)
	if _, err := failing.QuoteSwap(context.Background(), testAccount, req); !xerrors.HasCode(err, CodeQuoteUnavailable) {
		t.Fatalf("aggregator failure: got %v", err)
	}
}

func TestQuoteRejectsUnboundedFills(t *testing.T) {
	now := time.Now()
	req := SwapRequest{Amount: "1", FromToken: "USDC", ToToken: "WETH", FromChain: "ethereum", ToChain: "arbitrum"}
	for _, fills := range []int{-1, aggregator.MaxSecrets + 1, 1_000_000} {
		agg := &fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "q", DstAmount: big.NewInt(10), SecretsCount: fills}}
		engine := newTestEngine(agg, &now)
		if _, err := engine.QuoteSwap(context.Background(), testAccount, req); !xerrors.HasCode(err, CodeQuoteUnavailable) {
			t.Fatalf("fills=%d: got %v, want %s", fills, err, CodeQuoteUnavailable)
		}
	}
}

func TestQuoteRejectsOversizedAmounts(t *testing.T) {
	now := time.Now()
	engine := newTestEngine(&fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "q", DstAmount: big.NewInt(10)}}, &now)
	recipient := "0x1111111111111111111111111111111111111111"

	if _, err := engine.QuoteSend(context.Background(), testAccount, SendRequest{Amount: "1e3000000", Token: "USDC", Recipient: recipient}); !xerrors.HasCode(err, amount.CodeInvalidAmount) {
		t.Fatalf("oversized send: got %v", err)
	}
	swap := SwapRequest{Amount: "1e5000000", FromToken: "USDC", ToToken: "WETH", FromChain: "ethereum", ToChain: "arbitrum"}
	if _, err := engine.QuoteSwap(context.Background(), testAccount, swap); !xerrors.HasCode(err, amount.CodeInvalidAmount) {
		t.Fatalf("oversized swap: got %v", err)
	}
}

func TestQuoteBridgeDefaultsToWalletChain(t *testing.T) {
	now := time.Now()
	agg := &fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "b-1", DstAmount: big.NewInt(4_990_000)}}
	engine := newTestEngine(agg, &now)

	q, err := engine.QuoteBridge(context.Background(), testAccount, BridgeRequest{Amount: "5", Token: "USDC", ToChain: "arb"})
	if err != nil {
		t.Fatalf("quote bridge: %v", err)
	}
	if q.FromChainID != 1 || q.ToChainID != 42161 || q.AmountOutDisplay != "4.99" {
		t.Fatalf("unexpected bridge quote %+v", q)
	}
	if agg.quotes[0].SrcToken == agg.quotes[0].DstToken {
		t.Fatalf("bridge must resolve the token separately on each chain")
	}

	if _, err := engine.QuoteBridge(context.Background(), testAccount, BridgeRequest{Amount: "5", Token: "USDC", ToChain: "ethereum"}); !xerrors.HasCode(err, CodeSameChain) {
		t.Fatalf("bridge to the same chain: got %v", err)
	}
}

func TestQuoteSendValidatesRecipient(t *testing.T) {
	now := time.Now()
	engine := newTestEngine(&fakeAggregator{}, &now)

	if _, err := engine.QuoteSend(context.Background(), testAccount, SendRequest{Amount: "1", Token: "ETH", Recipient: "bob"}); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("invalid recipient: got %v", err)
	}

	q, err := engine.QuoteSend(context.Background(), testAccount, SendRequest{
		Amount: "0.5", Token: "POL", Recipient: "0x00000000000000000000000000000000000000b2", Chain: "matic",
	})
	if err != nil {
		t.Fatalf("quote send: %v", err)
	}
	if q.FromChainID != 137 || !registry.IsNative(q.FromToken) || q.AmountIn.String() != "500000000000000000" {
		t.Fatalf("unexpected send quote %+v", q)
	}
}

func TestExecuteSwapPlacesHashLockedOrder(t *testing.T) {
	now := time.Now()
	for _, secrets := range []int{1, 3} {
		agg := &fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "q", DstAmount: big.NewInt(10), SecretsCount: secrets}}
		custody := &fakeCustody{}
		engine := newTestEngine(agg, &now, WithCustody(custody))

		q, err := engine.QuoteSwap(context.Background(), testAccount, SwapRequest{
			Amount: "1", FromToken: "USDC", ToToken: "USDC", FromChain: "ethereum", ToChain: "optimism",
		})
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		receipt, err := engine.ExecuteSwap(context.Background(), testAccount, q)
		if err != nil {
			t.Fatalf("execute swap: %v", err)
		}
		if receipt.Reference != "0xorder" || len(agg.orders) != 1 || len(custody.signed) != 1 {
			t.Fatalf("expected exactly one signed order, got %+v", agg.orders)
		}
		order := agg.orders[0]
		if len(order.SecretHashes) != secrets {
			t.Fatalf("expected %d secret hashes, got %d", secrets, len(order.SecretHashes))
		}
		if secrets == 1 && order.HashLock != order.SecretHashes[0] {
			t.Fatalf("single fill lock must equal the secret hash")
		}
		if secrets > 1 && order.HashLock == order.SecretHashes[0] {
			t.Fatalf("multi fill lock must combine all secrets")
		}
	}
}

func TestExecuteSwapAuditsUnstoredPreimages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	if err := logger.Init(logger.Config{Format: "json", OutputPaths: []string{path}}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Sync()
		_ = logger.Init(logger.Config{})
	})

	now := time.Now()
	agg := &fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "q", DstAmount: big.NewInt(10), SecretsCount: 2}}
	engine := newTestEngine(agg, &now, WithCustody(&fakeCustody{}))
	q, err := engine.QuoteSwap(context.Background(), testAccount, SwapRequest{
		Amount: "1", FromToken: "USDC", ToToken: "USDC", FromChain: "ethereum", ToChain: "optimism",
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if _, err := engine.ExecuteSwap(context.Background(), testAccount, q); err != nil {
		t.Fatalf("execute swap: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) != nil || entry["msg"] != "hash-lock preimages not stored" {
			continue
		}
		found = true
		if entry["preimages_stored"] != false || entry["preimages"] != float64(2) || entry["order"] != "0xorder" {
			t.Fatalf("unexpected audit entry: %v", entry)
		}
	}
	if !found {
		t.Fatalf("missing preimage audit entry in %s", data)
	}
}

func TestExecuteRejectsExpiredQuote(t *testing.T) {
	now := time.Now()
	agg := &fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "q", DstAmount: big.NewInt(10)}}
	engine := newTestEngine(agg, &now, WithCustody(&fakeCustody{}), WithTTL(time.Minute))

	q, err := engine.QuoteSwap(context.Background(), testAccount, SwapRequest{
		Amount: "1", FromToken: "USDC", ToToken: "WETH", FromChain: "ethereum", ToChain: "base",
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := engine.ExecuteSwap(context.Background(), testAccount, q); !xerrors.HasCode(err, CodeQuoteExpired) {
		t.Fatalf("expected expired quote, got %v", err)
	}
	if len(agg.orders) != 0 {
		t.Fatalf("expired quote must not be executed")
	}
}

func TestExecuteBridgeThroughMessenger(t *testing.T) {
	now := time.Now()
	agg := &fakeAggregator{response: &aggregator.QuoteResponse{QuoteID: "b", DstAmount: big.NewInt(10)}}
	custody := &fakeCustody{}
	engine := newTestEngine(agg, &now, WithCustody(custody), WithMessenger(AggregatorMessenger{Submitter: agg}))

	q, err := engine.QuoteBridge(context.Background(), testAccount, BridgeRequest{Amount: "2", Token: "DAI", ToChain: "optimism"})
	if err != nil {
		t.Fatalf("quote bridge: %v", err)
	}
	receipt, err := engine.ExecuteBridge(context.Background(), testAccount, q)
	if err != nil {
		t.Fatalf("execute bridge: %v", err)
	}
	if receipt.Reference != "msg-1" || len(agg.bridges) != 1 {
		t.Fatalf("unexpected bridge submission %+v", agg.bridges)
	}
	if agg.bridges[0].Amount != "2000000000000000000" || agg.bridges[0].Signature != "0x0102" {
		t.Fatalf("unexpected bridge request %+v", agg.bridges[0])
	}
	if _, err := engine.ExecuteSwap(context.Background(), testAccount, q); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("a bridge quote must not execute as a swap: %v", err)
	}
}

func TestExecuteSendUsesChainClient(t *testing.T) {
	now := time.Now()
	client := &fakeChainClient{}
	engine := newTestEngine(&fakeAggregator{}, &now,
		WithCustody(&fakeCustody{}),
		WithChains(fakeChains{1: client}),
	)
	q, err := engine.QuoteSend(context.Background(), testAccount, SendRequest{
		Amount: "12.5", Token: "USDC", Recipient: "0x00000000000000000000000000000000000000b2",
	})
	if err != nil {
		t.Fatalf("quote send: %v", err)
	}
	receipt, err := engine.ExecuteSend(context.Background(), testAccount, q)
	if err != nil {
		t.Fatalf("execute send: %v", err)
	}
	if len(client.transfers) != 1 || client.transfers[0].Amount.String() != "12500000" {
		t.Fatalf("unexpected transfers %+v", client.transfers)
	}
	if receipt.Reference != common.HexToHash("0xabc").Hex() {
		t.Fatalf("unexpected reference %s", receipt.Reference)
	}

	missing := newTestEngine(&fakeAggregator{}, &now, WithCustody(&fakeCustody{}), WithChains(fakeChains{}))
	if _, err := missing.ExecuteSend(context.Background(), testAccount, q); !xerrors.HasCode(err, CodeExecutionFailed) {
		t.Fatalf("missing chain client: got %v", err)
	}
}
