package agent

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ChatWallet/internal/amount"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/observability/metrics"
	"ChatWallet/internal/registry"
	"ChatWallet/internal/wallet"
)

const displayPrecision = 6

// balanceCache 缓存渲染好的代币余额表，并合并同一会话的并发查询。
// 每次失效都会推进会话的代数，失效前发起的查询结果不再写回。
type balanceCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
	group singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

func newBalanceCache(ttl time.Duration) (*balanceCache, error) {
	if ttl <= 0 {
		return &balanceCache{gens: make(map[string]uint64)}, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1e6,
		MaxCost:            1e5,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &balanceCache{cache: cache, ttl: ttl, gens: make(map[string]uint64)}, nil
}

func (c *balanceCache) Get(sessionID string) (string, bool) {
	if c == nil || c.cache == nil {
		return "", false
	}
	v, ok := c.cache.Get(sessionID)
	if !ok {
		return "", false
	}
	text, ok := v.(string)
	return text, ok
}

// Generation 返回会话当前的缓存代数。
func (c *balanceCache) Generation(sessionID string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[sessionID]
}

// Set 仅在代数未变化时写入，返回是否写入。
func (c *balanceCache) Set(sessionID, text string, gen uint64) bool {
	if c == nil || c.cache == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[sessionID] != gen {
		return false
	}
	c.cache.SetWithTTL(sessionID, text, 1, c.ttl)
	c.cache.Wait()
	return true
}

// Invalidate 丢弃会话的缓存余额并推进代数，执行完成后调用。
func (c *balanceCache) Invalidate(sessionID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[sessionID]++
	if c.cache != nil {
		c.cache.Del(sessionID)
	}
}

func (c *balanceCache) Close() {
	if c != nil && c.cache != nil {
		c.cache.Close()
	}
}

func (a *Agent) nativeBalance(ctx context.Context, chainID uint64, record *wallet.Record) (string, error) {
	if a.chains == nil {
		return "", xerrors.New(CodeBalanceUnavailable, "")
	}
	client, ok := a.chains.Client(chainID)
	if !ok {
		return "", xerrors.New(CodeBalanceUnavailable, "", xerrors.WithMetadata("chain_id", fmt.Sprint(chainID)))
	}
	started := time.Now()
	balance, err := client.NativeBalance(ctx, record.Address)
	metrics.ObserveUpstream("rpc", err, time.Since(started))
	if err != nil {
		return "", xerrors.Wrap(CodeBalanceUnavailable, err, "", xerrors.WithMetadata("chain_id", fmt.Sprint(chainID)))
	}
	return amount.Format(balance, 18, displayPrecision), nil
}

type balanceRow struct {
	chain  registry.Chain
	symbol string
	value  *big.Int
	dec    int
	err    error
}

func (a *Agent) handleTokenBalances(ctx context.Context, sessionID string) (string, error) {
	record, err := a.requireWallet(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if text, ok := a.balances.Get(sessionID); ok {
		return text, nil
	}
	gen := a.balances.Generation(sessionID)
	key := sessionID + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := a.balances.group.Do(key, func() (any, error) {
		text, err := a.fetchTokenBalances(ctx, record)
		if err != nil {
			return "", err
		}
		a.balances.Set(sessionID, text, gen)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetchTokenBalances 并发查询所有已配置链上的全部代币，并发数受限。
func (a *Agent) fetchTokenBalances(ctx context.Context, record *wallet.Record) (string, error) {
	if a.chains == nil {
		return "", xerrors.New(CodeBalanceUnavailable, "")
	}
	var rows []*balanceRow
	for _, chain := range a.registry.Chains() {
		if _, ok := a.chains.Client(chain.ID); !ok {
			continue
		}
		for _, token := range a.registry.TokensOn(chain.ID) {
			rows = append(rows, &balanceRow{chain: chain, symbol: token.Symbol, dec: token.Decimals})
		}
	}
	if len(rows) == 0 {
		return "", xerrors.New(CodeBalanceUnavailable, "")
	}

	var group errgroup.Group
	group.SetLimit(a.balanceConcurrency)
	for _, row := range rows {
		row := row
		group.Go(func() error {
			client, _ := a.chains.Client(row.chain.ID)
			tokenAddr, err := a.registry.ResolveToken(row.symbol, row.chain.ID)
			if err != nil {
				row.err = err
				return nil
			}
			started := time.Now()
			if registry.IsNative(tokenAddr) {
				row.value, row.err = client.NativeBalance(ctx, record.Address)
			} else {
				row.value, row.err = client.TokenBalance(ctx, tokenAddr, record.Address)
			}
			metrics.ObserveUpstream("rpc", row.err, time.Since(started))
			return nil
		})
	}
	_ = group.Wait()

	failed := 0
	for _, row := range rows {
		if row.err != nil {
			failed++
		}
	}
	if failed == len(rows) {
		return "", xerrors.Wrap(CodeBalanceUnavailable, rows[0].err, "")
	}
	return renderBalanceTable(record, rows), nil
}

func renderBalanceTable(record *wallet.Record, rows []*balanceRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Token balances for %s\n", record.Address.Hex())
	var (
		current string
		shown   int
	)
	for _, row := range rows {
		if row.err == nil && (row.value == nil || row.value.Sign() == 0) {
			continue
		}
		if row.chain.Name != current {
			current = row.chain.Name
			fmt.Fprintf(&b, "\n%s:\n", current)
		}
		if row.err != nil {
			fmt.Fprintf(&b, "  %s: unavailable\n", row.symbol)
		} else {
			fmt.Fprintf(&b, "  %s: %s\n", row.symbol, amount.Format(row.value, row.dec, displayPrecision))
		}
		shown++
	}
	if shown == 0 {
		b.WriteString("\nNo token balances found.")
	}
	return strings.TrimRight(b.String(), "\n")
}
