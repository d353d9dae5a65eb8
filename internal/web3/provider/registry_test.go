package provider

import (
	"context"
	"testing"

	"ChatWallet/internal/registry"
)

func TestNewRegistryDialsChainsWithRPCURL(t *testing.T) {
	t.Setenv("TEST_RPC_KEY", "abc123")
	chains := registry.New([]registry.Chain{
		{Name: "ethereum", ID: 1, RPCURL: "http://127.0.0.1:8545/${TEST_RPC_KEY}"},
		{Name: "polygon", ID: 137},
		{Name: "base", ID: 8453, RPCURL: "http://127.0.0.1:8546"},
	}, nil)

	reg, err := NewRegistry(context.Background(), chains, 0)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(reg.Close)

	ids := reg.Chains()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 8453 {
		t.Fatalf("unexpected chains %v", ids)
	}
	if _, ok := reg.Client(137); ok {
		t.Fatal("polygon has no rpc url and should not get a client")
	}
}

func TestNewRegistryRequiresAnEndpoint(t *testing.T) {
	chains := registry.New([]registry.Chain{{Name: "ethereum", ID: 1}}, nil)
	if _, err := NewRegistry(context.Background(), chains, 0); err == nil {
		t.Fatal("expected error without any rpc url")
	}
}
