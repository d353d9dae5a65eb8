package registry

import "github.com/ethereum/go-ethereum/common"

const (
	chainPolygon  uint64 = 137
	chainArbitrum uint64 = 42161
	chainOptimism uint64 = 10
	chainBase     uint64 = 8453
)

// Default 返回内置的主网链与常用代币表。
func Default() *Registry {
	return New(defaultChains(), defaultTokens())
}

func defaultChains() []Chain {
	return []Chain{
		{Name: "ethereum", ID: EthereumMainnet, NativeSymbol: "ETH", Aliases: []string{"eth", "mainnet"}},
		{Name: "optimism", ID: chainOptimism, NativeSymbol: "ETH", Aliases: []string{"op"}},
		{Name: "polygon", ID: chainPolygon, NativeSymbol: "POL", Aliases: []string{"matic"}},
		{Name: "base", ID: chainBase, NativeSymbol: "ETH"},
		{Name: "arbitrum", ID: chainArbitrum, NativeSymbol: "ETH", Aliases: []string{"arb", "arbitrum-one"}},
	}
}

func defaultTokens() []Token {
	return []Token{
		{Symbol: "ETH", Decimals: 18, Addresses: map[uint64]common.Address{
			EthereumMainnet: NativeTokenAddress,
			chainOptimism:   NativeTokenAddress,
			chainBase:       NativeTokenAddress,
			chainArbitrum:   NativeTokenAddress,
		}},
		{Symbol: "POL", Decimals: 18, Addresses: map[uint64]common.Address{
			chainPolygon: NativeTokenAddress,
		}},
		{Symbol: "USDC", Decimals: 6, Addresses: map[uint64]common.Address{
			EthereumMainnet: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			chainOptimism:   common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
			chainPolygon:    common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
			chainBase:       common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			chainArbitrum:   common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
		}},
		{Symbol: "USDT", Decimals: 6, Addresses: map[uint64]common.Address{
			EthereumMainnet: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			chainOptimism:   common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"),
			chainPolygon:    common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
			chainArbitrum:   common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
		}},
		{Symbol: "DAI", Decimals: 18, Addresses: map[uint64]common.Address{
			EthereumMainnet: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			chainOptimism:   common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
			chainPolygon:    common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"),
			chainArbitrum:   common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
		}},
		{Symbol: "WETH", Decimals: 18, Addresses: map[uint64]common.Address{
			EthereumMainnet: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			chainOptimism:   common.HexToAddress("0x4200000000000000000000000000000000000006"),
			chainPolygon:    common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"),
			chainBase:       common.HexToAddress("0x4200000000000000000000000000000000000006"),
			chainArbitrum:   common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		}},
		{Symbol: "WBTC", Decimals: 8, Addresses: map[uint64]common.Address{
			EthereumMainnet: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"),
			chainPolygon:    common.HexToAddress("0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6"),
			chainArbitrum:   common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"),
		}},
	}
}
