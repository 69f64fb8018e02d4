package hash

import (
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	// Known SHA256 of "hello"
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	got := SHA256Hex("hello")
	if got != want {
		t.Errorf("SHA256Hex(\"hello\") = %s, want %s", got, want)
	}
}

func TestSHA256Hex_Empty(t *testing.T) {
	// SHA256 of empty string
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	got := SHA256Hex("")
	if got != want {
		t.Errorf("SHA256Hex(\"\") = %s, want %s", got, want)
	}
}

func TestHMACSHA256Hex(t *testing.T) {
	// Deterministic for same key/message
	a := HMACSHA256Hex("secret", "challenge")
	b := HMACSHA256Hex("secret", "challenge")
	if a != b {
		t.Error("HMACSHA256Hex should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("HMAC length = %d, want 64 hex chars", len(a))
	}

	// Different key should produce a different MAC
	if HMACSHA256Hex("other", "challenge") == a {
		t.Error("different keys should produce different MACs")
	}

	// Different message should produce a different MAC
	if HMACSHA256Hex("secret", "other") == a {
		t.Error("different messages should produce different MACs")
	}
}

func TestHMACEqual(t *testing.T) {
	mac := HMACSHA256Hex("key", "msg")
	if !HMACEqual(mac, mac) {
		t.Error("identical MACs should compare equal")
	}
	if HMACEqual(mac, HMACSHA256Hex("key", "other")) {
		t.Error("different MACs should not compare equal")
	}
}

func TestHashIPForKey(t *testing.T) {
	h := HashIPForKey("192.168.1.1")
	if len(h) != 12 {
		t.Errorf("HashIPForKey length = %d, want 12", len(h))
	}
	if h != HashIPForKey("192.168.1.1") {
		t.Error("HashIPForKey should be deterministic")
	}
	if h == HashIPForKey("10.0.0.1") {
		t.Error("different IPs should produce different hashes")
	}
}
