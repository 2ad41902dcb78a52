package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	// Min cost keeps the test fast
	pm := NewPasswordManager(bcrypt.MinCost, 8)

	hash, err := pm.HashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "Sup3rSecret!" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !pm.VerifyPassword("Sup3rSecret!", hash) {
		t.Error("correct password should verify")
	}
	if pm.VerifyPassword("wrong-password", hash) {
		t.Error("wrong password should not verify")
	}
}

func TestHashPasswordTooLong(t *testing.T) {
	pm := NewPasswordManager(bcrypt.MinCost, 8)

	if _, err := pm.HashPassword(strings.Repeat("a", MaxPasswordLength+1)); err == nil {
		t.Error("expected error for oversized password")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	pm := NewPasswordManager(bcrypt.MinCost, 8)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"strong mixed", "Correct1Horse!", false},
		{"upper lower number", "Correct1Horse", false},
		{"too short", "Ab1!", true},
		{"single class", "alllowercase", true},
		{"two classes", "correct1horse", true},
		{"too long", strings.Repeat("Aa1!", 40), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pm.ValidatePasswordStrength(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestHashRefreshTokenDeterministic(t *testing.T) {
	first := HashRefreshToken("refresh-token-1")
	second := HashRefreshToken("refresh-token-1")
	other := HashRefreshToken("refresh-token-2")

	if first != second {
		t.Error("same token must hash identically")
	}
	if first == other {
		t.Error("different tokens must hash differently")
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}
}

func TestCheckPasswordHistory(t *testing.T) {
	pm := NewPasswordManager(bcrypt.MinCost, 8)

	oldHash, err := pm.HashPassword("OldPassw0rd!")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !pm.CheckPasswordHistory("OldPassw0rd!", []string{oldHash}) {
		t.Error("reused password should be detected")
	}
	if pm.CheckPasswordHistory("NewPassw0rd!", []string{oldHash}) {
		t.Error("fresh password should pass history check")
	}
}
