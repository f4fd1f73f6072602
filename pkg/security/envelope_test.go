package security

import (
	"strings"
	"testing"
)

func TestEnvelope_Suite(t *testing.T) {
	env, err := NewEnvelope("room-shared-secret")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	t.Run("RoundTrip", func(t *testing.T) {
		for _, pt := range []string{"hello", "multi\nline\ttext", "emoji 👻 body", strings.Repeat("x", 4096)} {
			ct := env.Encrypt(pt)
			if ct == "" {
				t.Fatalf("Encrypt returned empty ciphertext for %q", pt)
			}
			if ct == pt {
				t.Fatalf("ciphertext equals plaintext")
			}
			if got := env.Decrypt(ct); got != pt {
				t.Fatalf("round trip mismatch: got %q want %q", got, pt)
			}
		}
	})

	t.Run("FreshIVPerMessage", func(t *testing.T) {
		a := env.Encrypt("same body")
		b := env.Encrypt("same body")
		if a == b {
			t.Fatalf("two encryptions of the same plaintext produced identical ciphertext")
		}
	})

	t.Run("WrongKeyYieldsSentinel", func(t *testing.T) {
		other, err := NewEnvelope("a-different-secret")
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}
		ct := env.Encrypt("secret text")
		if got := other.Decrypt(ct); got != DecryptFailedText {
			t.Fatalf("wrong-key decrypt returned %q, want sentinel", got)
		}
	})

	t.Run("MalformedInputNeverPanics", func(t *testing.T) {
		for _, ct := range []string{"", "not base64 !!!", "aGVsbG8=", "AAAA"} {
			if got := env.Decrypt(ct); got != DecryptFailedText {
				t.Fatalf("Decrypt(%q) = %q, want sentinel", ct, got)
			}
		}
	})

	t.Run("HexKeyConstructor", func(t *testing.T) {
		if _, err := NewEnvelopeHex("00112233"); err == nil {
			t.Fatalf("short hex key accepted")
		}
		hexKey := strings.Repeat("ab", 32)
		he, err := NewEnvelopeHex(hexKey)
		if err != nil {
			t.Fatalf("NewEnvelopeHex: %v", err)
		}
		if got := he.Decrypt(he.Encrypt("ping")); got != "ping" {
			t.Fatalf("hex-keyed round trip mismatch: %q", got)
		}
	})

	t.Run("EmptyPassphraseRejected", func(t *testing.T) {
		if _, err := NewEnvelope(""); err == nil {
			t.Fatalf("empty passphrase accepted")
		}
	})
}
