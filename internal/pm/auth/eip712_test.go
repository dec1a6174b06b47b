package auth

import (
	"strings"
	"testing"
	"time"
)

// well-known anvil/hardhat test key, never funded on mainnet
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatalf("signer init failed: %v", err)
	}
	if s.Address().Hex() != testAddr {
		t.Fatalf("expected %s, got %s", testAddr, s.Address().Hex())
	}
}

func TestSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("not-a-key", 137); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestSignerHeaders(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatalf("signer init failed: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	headers, err := s.Headers(now, 0)
	if err != nil {
		t.Fatalf("headers failed: %v", err)
	}
	if headers["POLY_ADDRESS"] != testAddr {
		t.Fatalf("wrong address header: %s", headers["POLY_ADDRESS"])
	}
	if headers["POLY_TIMESTAMP"] != "1748779200" {
		t.Fatalf("wrong timestamp header: %s", headers["POLY_TIMESTAMP"])
	}
	sig := headers["POLY_SIGNATURE"]
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+65*2 {
		t.Fatalf("malformed signature %q", sig)
	}
	// Same inputs must sign deterministically.
	again, err := s.Headers(now, 0)
	if err != nil {
		t.Fatalf("second headers failed: %v", err)
	}
	if again["POLY_SIGNATURE"] != sig {
		t.Fatalf("signature not deterministic")
	}
}
