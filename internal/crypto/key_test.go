package crypto

import "testing"

func TestDeviceKeyHashing(t *testing.T) {
	key, err := NewDeviceKey()
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	hash, err := HashDeviceKey(key)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckDeviceKey(hash, key); err != nil {
		t.Fatalf("expected key to match")
	}
	if err := CheckDeviceKey(hash, "wrong"); err == nil {
		t.Fatalf("expected key mismatch")
	}
}

func TestNewQRTokenFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := NewQRToken()
		if err != nil {
			t.Fatalf("token error: %v", err)
		}
		if len(token) != 32 {
			t.Fatalf("expected 32 hex chars, got %d", len(token))
		}
		if seen[token] {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = true
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("abc") != HashKey("abc") {
		t.Fatalf("expected stable digest")
	}
	if HashKey("abc") == HashKey("abd") {
		t.Fatalf("expected distinct digests")
	}
}
