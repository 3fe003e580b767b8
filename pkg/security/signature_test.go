package security_test

import (
	"testing"

	"github.com/promptlens/promptlens-backend/pkg/security"
)

func TestSignHMACHexDeterministic(t *testing.T) {
	first := security.SignHMACHex("secret", "order_123|pay_456")
	second := security.SignHMACHex("secret", "order_123|pay_456")
	if first != second {
		t.Fatalf("same key/message produced different signatures: %s vs %s", first, second)
	}
	if security.SignHMACHex("other", "order_123|pay_456") == first {
		t.Fatal("different keys produced identical signatures")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	sig := security.SignHMACHex("secret", "payload")

	if !security.ConstantTimeEquals(sig, sig) {
		t.Fatal("identical signatures should match")
	}

	// Flipping any single byte must fail.
	for i := 0; i < len(sig); i++ {
		mutated := []byte(sig)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		if string(mutated) == sig {
			continue
		}
		if security.ConstantTimeEquals(sig, string(mutated)) {
			t.Fatalf("mutated signature at byte %d should not match", i)
		}
	}

	if security.ConstantTimeEquals(sig, sig[:len(sig)-1]) {
		t.Fatal("length mismatch should not match")
	}
	if security.ConstantTimeEquals("", sig) {
		t.Fatal("empty candidate should not match")
	}
}

func TestHashGuestKey(t *testing.T) {
	a := security.HashGuestKey("salt", "203.0.113.9")
	b := security.HashGuestKey("salt", "203.0.113.9")
	if a != b {
		t.Fatal("guest key derivation should be stable")
	}
	if security.HashGuestKey("salt", "203.0.113.10") == a {
		t.Fatal("different IPs should produce different keys")
	}
	if security.HashGuestKey("other-salt", "203.0.113.9") == a {
		t.Fatal("different salts should produce different keys")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 length 64, got %d", len(a))
	}
}
