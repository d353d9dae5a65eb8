package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Definitions 对应 configs/registry.yaml 的结构。
type Definitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
	Tokens map[string]TokenDefinition `yaml:"tokens"`
}

// ChainDefinition 描述单条链的覆盖配置。
type ChainDefinition struct {
	ID           uint64   `yaml:"id"`
	NativeSymbol string   `yaml:"native_symbol"`
	RPCURL       string   `yaml:"rpc_url"`
	Aliases      []string `yaml:"aliases"`
}

// TokenDefinition 描述代币精度以及按链名索引的合约地址。
type TokenDefinition struct {
	Decimals  int               `yaml:"decimals"`
	Addresses map[string]string `yaml:"addresses"`
}

// LoadDefinitions 解析注册表 YAML，路径为空时返回空定义。
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取注册表配置失败: %w", err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("解析注册表配置失败: %w", err)
	}
	return defs, nil
}

// Load 以内置表为基础叠加 YAML 中的定义，同名链和代币会被覆盖或补充。
func Load(path string) (*Registry, error) {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return nil, err
	}
	return Merge(defaultChains(), defaultTokens(), defs)
}

// Merge 将定义叠加到给定的基础表上。
func Merge(baseChains []Chain, baseTokens []Token, defs Definitions) (*Registry, error) {
	chains := make(map[string]Chain, len(baseChains)+len(defs.Chains))
	order := make([]string, 0, len(baseChains)+len(defs.Chains))
	for _, chain := range baseChains {
		name := normalize(chain.Name)
		chains[name] = chain
		order = append(order, name)
	}
	for rawName, def := range defs.Chains {
		name := normalize(rawName)
		chain, exists := chains[name]
		if !exists {
			if def.ID == 0 {
				return nil, fmt.Errorf("链 %s 缺少 id", rawName)
			}
			order = append(order, name)
		}
		chain.Name = name
		if def.ID != 0 {
			chain.ID = def.ID
		}
		if def.NativeSymbol != "" {
			chain.NativeSymbol = strings.ToUpper(def.NativeSymbol)
		}
		if def.RPCURL != "" {
			chain.RPCURL = def.RPCURL
		}
		if len(def.Aliases) > 0 {
			chain.Aliases = append(append([]string(nil), chain.Aliases...), def.Aliases...)
		}
		chains[name] = chain
	}

	merged := make([]Chain, 0, len(order))
	for _, name := range order {
		merged = append(merged, chains[name])
	}
	reg := New(merged, baseTokens)

	for symbol, def := range defs.Tokens {
		addresses := make(map[uint64]common.Address, len(def.Addresses))
		for chainName, hex := range def.Addresses {
			chain, ok := reg.LookupChain(chainName)
			if !ok {
				return nil, fmt.Errorf("代币 %s 引用了未知链 %s", symbol, chainName)
			}
			if hex != "native" && !common.IsHexAddress(hex) {
				return nil, fmt.Errorf("代币 %s 在链 %s 上的地址无效: %s", symbol, chainName, hex)
			}
			addr := NativeTokenAddress
			if hex != "native" {
				addr = common.HexToAddress(hex)
			}
			addresses[chain.ID] = addr
		}
		decimals := def.Decimals
		if decimals == 0 {
			if existing, err := reg.DecimalsOf(symbol); err == nil {
				decimals = existing
			}
		}
		if decimals <= 0 {
			return nil, fmt.Errorf("代币 %s 缺少精度", symbol)
		}
		reg.addToken(Token{Symbol: symbol, Decimals: decimals, Addresses: addresses})
	}
	return reg, nil
}
