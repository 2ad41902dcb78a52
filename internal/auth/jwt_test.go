package auth

import (
	"testing"
	"time"
)

func testClaims() UserClaims {
	return UserClaims{
		UserID:           "user-1",
		Email:            "trader@example.com",
		SubscriptionTier: "pro",
		IsAdmin:          false,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 7*24*time.Hour)

	token, err := m.GenerateAccessToken(testClaims())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Email != "trader@example.com" {
		t.Errorf("Email = %q, want trader@example.com", claims.Email)
	}
	if claims.SubscriptionTier != "pro" {
		t.Errorf("SubscriptionTier = %q, want pro", claims.SubscriptionTier)
	}
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 7*24*time.Hour)
	other := NewJWTManager("other-secret", 15*time.Minute, 7*24*time.Hour)

	token, err := m.GenerateAccessToken(testClaims())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := other.ValidateAccessToken(token); err == nil {
		t.Error("token signed with a different secret should be rejected")
	}
}

func TestValidateAccessTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, 7*24*time.Hour)

	token, err := m.GenerateAccessToken(testClaims())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m.ValidateAccessToken(token); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 7*24*time.Hour)

	if _, err := m.ValidateAccessToken("not-a-jwt"); err == nil {
		t.Error("malformed token should be rejected")
	}
}

func TestGenerateRefreshTokenUnique(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 7*24*time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token, err := m.GenerateRefreshToken()
		if err != nil {
			t.Fatalf("GenerateRefreshToken failed: %v", err)
		}
		if seen[token] {
			t.Fatal("refresh tokens must be unique")
		}
		seen[token] = true
	}
}

func TestVerificationTokenPurpose(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 7*24*time.Hour)

	token, err := m.GenerateVerificationToken("user-1", "email_verification", time.Hour)
	if err != nil {
		t.Fatalf("GenerateVerificationToken failed: %v", err)
	}

	userID, err := m.ValidateVerificationToken(token, "email_verification")
	if err != nil {
		t.Fatalf("ValidateVerificationToken failed: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want user-1", userID)
	}

	if _, err := m.ValidateVerificationToken(token, "password_reset"); err == nil {
		t.Error("token with wrong purpose should be rejected")
	}
}
