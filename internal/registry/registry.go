package registry

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "ChatWallet/internal/errors"
)

// EthereumMainnet 是未知链名时回退使用的默认链。
const EthereumMainnet uint64 = 1

// NativeTokenAddress 是聚合器约定的原生币占位地址。
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// ErrNotFound 表示注册表中不存在对应的代币或链。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "registry entry not found")

// Chain 描述一条受支持的链。
type Chain struct {
	Name         string
	ID           uint64
	NativeSymbol string
	RPCURL       string
	Aliases      []string
}

// Token 描述一个代币在各条链上的地址以及统一的精度。
type Token struct {
	Symbol    string
	Decimals  int
	Addresses map[uint64]common.Address
}

// Registry 是进程级只读的代币与链描述表，初始化后不再修改。
type Registry struct {
	chains      map[uint64]Chain
	chainByName map[string]uint64
	tokens      map[string]Token
}

// New 根据给定的链与代币构建注册表。
func New(chains []Chain, tokens []Token) *Registry {
	r := &Registry{
		chains:      make(map[uint64]Chain, len(chains)),
		chainByName: make(map[string]uint64),
		tokens:      make(map[string]Token, len(tokens)),
	}
	for _, chain := range chains {
		r.addChain(chain)
	}
	for _, token := range tokens {
		r.addToken(token)
	}
	return r
}

func (r *Registry) addChain(chain Chain) {
	chain.Name = normalize(chain.Name)
	r.chains[chain.ID] = chain
	r.chainByName[chain.Name] = chain.ID
	for _, alias := range chain.Aliases {
		r.chainByName[normalize(alias)] = chain.ID
	}
}

func (r *Registry) addToken(token Token) {
	symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
	addresses := make(map[uint64]common.Address, len(token.Addresses))
	if existing, ok := r.tokens[symbol]; ok {
		for id, addr := range existing.Addresses {
			addresses[id] = addr
		}
	}
	for id, addr := range token.Addresses {
		addresses[id] = addr
	}
	r.tokens[symbol] = Token{Symbol: symbol, Decimals: token.Decimals, Addresses: addresses}
}

// ResolveToken 返回代币在指定链上的地址，不存在时返回 ErrNotFound，绝不猜测地址。
func (r *Registry) ResolveToken(symbol string, chainID uint64) (common.Address, error) {
	token, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return common.Address{}, ErrNotFound
	}
	addr, ok := token.Addresses[chainID]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, ErrNotFound
	}
	return addr, nil
}

// ResolveChainID 把链名解析为链 ID，未知链名回退到以太坊主网。
//
// 回退会把请求静默路由到主网，需要严格校验的调用方应使用 LookupChain。
func (r *Registry) ResolveChainID(name string) uint64 {
	if chain, ok := r.LookupChain(name); ok {
		return chain.ID
	}
	return EthereumMainnet
}

// LookupChain 严格查找链，支持链名、别名与十进制链 ID。
func (r *Registry) LookupChain(name string) (Chain, bool) {
	key := normalize(name)
	if key == "" {
		return Chain{}, false
	}
	if id, ok := r.chainByName[key]; ok {
		chain, ok := r.chains[id]
		return chain, ok
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		chain, ok := r.chains[id]
		return chain, ok
	}
	return Chain{}, false
}

// Chain 按链 ID 查找链描述。
func (r *Registry) Chain(id uint64) (Chain, bool) {
	chain, ok := r.chains[id]
	return chain, ok
}

// ChainName 返回链名，未注册时返回十进制链 ID。
func (r *Registry) ChainName(id uint64) string {
	if chain, ok := r.chains[id]; ok {
		return chain.Name
	}
	return strconv.FormatUint(id, 10)
}

// DecimalsOf 返回代币精度。
func (r *Registry) DecimalsOf(symbol string) (int, error) {
	token, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return 0, ErrNotFound
	}
	return token.Decimals, nil
}

// Symbols 返回按字母排序的全部代币符号。
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.tokens))
	for symbol := range r.tokens {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Chains 返回按链 ID 排序的全部链。
func (r *Registry) Chains() []Chain {
	chains := make([]Chain, 0, len(r.chains))
	for _, chain := range r.chains {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ID < chains[j].ID })
	return chains
}

// TokensOn 返回在指定链上有地址的代币，按符号排序。
func (r *Registry) TokensOn(chainID uint64) []Token {
	var tokens []Token
	for _, symbol := range r.Symbols() {
		token := r.tokens[symbol]
		if _, ok := token.Addresses[chainID]; ok {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// IsNative 判断地址是否为原生币占位地址。
func IsNative(addr common.Address) bool {
	return addr == NativeTokenAddress
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
