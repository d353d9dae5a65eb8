package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"ChatWallet/internal/registry"
	"ChatWallet/internal/web3"
	"ChatWallet/internal/web3/ethereum"
)

// Registry manages a set of chain clients keyed by chain id.
type Registry struct {
	clients map[uint64]web3.Client
}

// NewRegistry instantiates one client per registry chain that carries an RPC
// URL. ${VAR} references in URLs are expanded from the environment.
func NewRegistry(ctx context.Context, chains *registry.Registry, timeout time.Duration) (*Registry, error) {
	clients := make(map[uint64]web3.Client)
	for _, chain := range chains.Chains() {
		rpcURL := strings.TrimSpace(os.ExpandEnv(chain.RPCURL))
		if rpcURL == "" {
			continue
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:    chain.Name,
			RPCURL:  rpcURL,
			Notes:   fmt.Sprintf("%s (%d)", chain.Name, chain.ID),
			Timeout: timeout,
		})
		if err != nil {
			for _, opened := range clients {
				opened.Close()
			}
			return nil, fmt.Errorf("初始化链 %s 失败: %w", chain.Name, err)
		}
		clients[chain.ID] = client
	}
	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	return &Registry{clients: clients}, nil
}

// NewStatic wraps pre-built clients, used by tests and tooling.
func NewStatic(clients map[uint64]web3.Client) *Registry {
	copied := make(map[uint64]web3.Client, len(clients))
	for id, client := range clients {
		copied[id] = client
	}
	return &Registry{clients: copied}
}

// Client returns the chain client for the given chain id.
func (r *Registry) Client(chainID uint64) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[chainID]
	return client, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for id, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, id)
	}
}

// Chains returns the sorted list of chain ids with a client.
func (r *Registry) Chains() []uint64 {
	if r == nil {
		return nil
	}
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
