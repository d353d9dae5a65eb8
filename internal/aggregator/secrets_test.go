package aggregator

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSingleFillHashLockIsSecretHash(t *testing.T) {
	secrets, err := NewSecrets(1)
	if err != nil {
		t.Fatalf("new secrets: %v", err)
	}
	if secrets.HashLock() != crypto.Keccak256Hash(secrets.values[0][:]) {
		t.Fatalf("single fill lock must be keccak256 of the secret")
	}
	if strings.Contains(secrets.String(), common.Bytes2Hex(secrets.values[0][:])) {
		t.Fatalf("String must not reveal the secret")
	}
}

func TestMultiFillHashLockIsMerkleRoot(t *testing.T) {
	secrets, err := NewSecrets(3)
	if err != nil {
		t.Fatalf("new secrets: %v", err)
	}
	hashes := secrets.Hashes()
	if len(hashes) != 3 {
		t.Fatalf("expected 3 hashes, got %d", len(hashes))
	}

	leaf := func(i int) common.Hash {
		var index [8]byte
		binary.BigEndian.PutUint64(index[:], uint64(i))
		return crypto.Keccak256Hash(index[:], hashes[i].Bytes())
	}
	want := hashPair(hashPair(leaf(0), leaf(1)), leaf(2))
	if got := secrets.HashLock(); got != want {
		t.Fatalf("hash lock = %s, want %s", got.Hex(), want.Hex())
	}

	other, _ := NewSecrets(3)
	if other.HashLock() == secrets.HashLock() {
		t.Fatalf("independent secret sets must not share a lock")
	}
}

func TestNewSecretsRejectsZero(t *testing.T) {
	if _, err := NewSecrets(0); err == nil {
		t.Fatalf("expected error for zero secrets")
	}
}

func TestNewSecretsBounds(t *testing.T) {
	if _, err := NewSecrets(MaxSecrets); err != nil {
		t.Fatalf("NewSecrets(%d): %v", MaxSecrets, err)
	}
	for _, n := range []int{0, -3, MaxSecrets + 1} {
		if _, err := NewSecrets(n); err == nil {
			t.Fatalf("NewSecrets(%d) should fail", n)
		}
	}
}
