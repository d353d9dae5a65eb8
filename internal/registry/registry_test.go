package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestResolveTokenKnownAndUnknown(t *testing.T) {
	reg := Default()

	addr, err := reg.ResolveToken("usdc", 1)
	if err != nil {
		t.Fatalf("resolve usdc: %v", err)
	}
	if addr != common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48") {
		t.Fatalf("unexpected usdc address %s", addr.Hex())
	}

	if _, err := reg.ResolveToken("USDT", 8453); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for USDT on base, got %v", err)
	}
	if _, err := reg.ResolveToken("DOGE", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown symbol, got %v", err)
	}
}

func TestResolveTokenCoversEveryPair(t *testing.T) {
	reg := Default()
	want := make(map[string]map[uint64]common.Address)
	for _, token := range defaultTokens() {
		want[token.Symbol] = token.Addresses
	}
	chains := append(reg.Chains(), Chain{Name: "unregistered", ID: 999999})

	present, absent := 0, 0
	for _, symbol := range reg.Symbols() {
		for _, chain := range chains {
			expected, listed := want[symbol][chain.ID]
			for _, query := range []string{symbol, strings.ToLower(symbol)} {
				addr, err := reg.ResolveToken(query, chain.ID)
				if listed {
					if err != nil || addr != expected || addr == (common.Address{}) {
						t.Errorf("ResolveToken(%s, %d) = %s, %v, want %s", query, chain.ID, addr.Hex(), err, expected.Hex())
					}
					continue
				}
				if !errors.Is(err, ErrNotFound) || addr != (common.Address{}) {
					t.Errorf("ResolveToken(%s, %d) = %s, %v, want ErrNotFound", query, chain.ID, addr.Hex(), err)
				}
			}
			if listed {
				present++
			} else {
				absent++
			}
		}
	}
	if present == 0 || absent == 0 {
		t.Fatalf("expected both listed and absent pairs, got %d and %d", present, absent)
	}
}

func TestResolveChainIDFallsBackToMainnet(t *testing.T) {
	reg := Default()
	cases := map[string]uint64{
		"Polygon":  137,
		" arb ":    42161,
		"OP":       10,
		"8453":     8453,
		"mainnet":  1,
		"solana":   EthereumMainnet,
		"":         EthereumMainnet,
		"99999999": EthereumMainnet,
	}
	for name, want := range cases {
		if got := reg.ResolveChainID(name); got != want {
			t.Errorf("ResolveChainID(%q) = %d, want %d", name, got, want)
		}
	}

	if _, ok := reg.LookupChain("solana"); ok {
		t.Fatalf("strict lookup must reject unknown chains")
	}
}

func TestDecimalsAndListing(t *testing.T) {
	reg := Default()
	if dec, err := reg.DecimalsOf("WBTC"); err != nil || dec != 8 {
		t.Fatalf("WBTC decimals = %d, %v", dec, err)
	}
	if _, err := reg.DecimalsOf("NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	chains := reg.Chains()
	if len(chains) != 5 || chains[0].ID != 1 || chains[len(chains)-1].ID != 42161 {
		t.Fatalf("unexpected chain ordering: %+v", chains)
	}

	var onBase []string
	for _, token := range reg.TokensOn(8453) {
		onBase = append(onBase, token.Symbol)
	}
	want := []string{"ETH", "USDC", "WETH"}
	if len(onBase) != len(want) {
		t.Fatalf("tokens on base = %v, want %v", onBase, want)
	}
	for i := range want {
		if onBase[i] != want[i] {
			t.Fatalf("tokens on base = %v, want %v", onBase, want)
		}
	}

	native, _ := reg.ResolveToken("POL", 137)
	if !IsNative(native) {
		t.Fatalf("POL on polygon should be native")
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := `
chains:
  polygon:
    rpc_url: https://polygon.example
  sepolia:
    id: 11155111
    native_symbol: eth
    aliases: [sep]
tokens:
  USDC:
    addresses:
      sep: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
  LINK:
    decimals: 18
    addresses:
      ethereum: "0x514910771AF9Ca656af840dff83E8264EcF986CA"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	polygon, ok := reg.Chain(137)
	if !ok || polygon.RPCURL != "https://polygon.example" {
		t.Fatalf("polygon override not applied: %+v", polygon)
	}
	if id := reg.ResolveChainID("sep"); id != 11155111 {
		t.Fatalf("sepolia alias resolved to %d", id)
	}
	if _, err := reg.ResolveToken("USDC", 11155111); err != nil {
		t.Fatalf("usdc on sepolia: %v", err)
	}
	if _, err := reg.ResolveToken("USDC", 1); err != nil {
		t.Fatalf("overlay must keep built-in usdc addresses: %v", err)
	}
	if dec, _ := reg.DecimalsOf("USDC"); dec != 6 {
		t.Fatalf("usdc decimals = %d", dec)
	}
	if _, err := reg.ResolveToken("LINK", 1); err != nil {
		t.Fatalf("link on ethereum: %v", err)
	}
}

func TestLoadRejectsUnknownChainReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := "tokens:\n  FOO:\n    decimals: 18\n    addresses:\n      fantom: \"0x0000000000000000000000000000000000000001\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown chain reference")
	}
}
