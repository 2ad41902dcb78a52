package aikeys

import (
	"strings"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	c := NewCipher("unit-test-secret")

	cases := []string{
		"sk-proj-abc123",
		"",
		"sessionid=abc; sessionid_sign=def",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range cases {
		encrypted, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if encrypted == plaintext && plaintext != "" {
			t.Error("ciphertext equals plaintext")
		}

		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestCipherNonceUniqueness(t *testing.T) {
	c := NewCipher("unit-test-secret")

	first, err := c.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := c.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if first == second {
		t.Error("identical ciphertext for repeated encryption, nonce is not random")
	}
}

func TestCipherWrongKey(t *testing.T) {
	encrypted, err := NewCipher("key-one").Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := NewCipher("key-two").Decrypt(encrypted); err == nil {
		t.Error("expected decryption failure with wrong key")
	}
}

func TestCipherShortCiphertext(t *testing.T) {
	c := NewCipher("unit-test-secret")

	if _, err := c.Decrypt("dG9vc2hvcnQ="); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
	if _, err := c.Decrypt("not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestLastFour(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sk-proj-abc1234", "1234"},
		{"abcd", "abcd"},
		{"ab", "ab"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := LastFour(tc.in); got != tc.want {
			t.Errorf("LastFour(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
