package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "chartpilot"
	tokenAudience = "chartpilot-api"

	refreshTokenBytes = 32
)

// JWTManager signs and validates access, refresh, and verification tokens
type JWTManager struct {
	secret               []byte
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
}

// Claims carries the user claims inside a signed access token
type Claims struct {
	UserClaims
	jwt.RegisteredClaims
}

// verificationClaims is the payload of single-purpose tokens such as email
// verification and password reset links
type verificationClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessDuration, refreshDuration time.Duration) *JWTManager {
	return &JWTManager{
		secret:               []byte(secret),
		accessTokenDuration:  accessDuration,
		refreshTokenDuration: refreshDuration,
	}
}

// GenerateAccessToken signs a short-lived access token for the user
func (m *JWTManager) GenerateAccessToken(claims UserClaims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDuration)),
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken generates a cryptographically random opaque token.
// Only its SHA-256 digest is persisted; see HashRefreshToken.
func (m *JWTManager) GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// ValidateAccessToken parses and validates an access token, returning the
// embedded user claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims.UserClaims, nil
}

// GenerateTokenPair issues an access token and a fresh refresh token
func (m *JWTManager) GenerateTokenPair(claims UserClaims) (*TokenPair, error) {
	accessToken, err := m.GenerateAccessToken(claims)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    m.GetAccessTokenDuration(),
		TokenType:    "Bearer",
	}, nil
}

// GenerateVerificationToken signs a single-purpose token bound to the user
func (m *JWTManager) GenerateVerificationToken(userID string, purpose string, duration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, verificationClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign verification token: %w", err)
	}
	return signed, nil
}

// ValidateVerificationToken checks a single-purpose token and returns the
// user ID it was issued for. A token minted for a different purpose is
// rejected even when otherwise valid.
func (m *JWTManager) ValidateVerificationToken(tokenString string, expectedPurpose string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &verificationClaims{}, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*verificationClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Purpose != expectedPurpose || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// GetAccessTokenDuration returns the access token lifetime in seconds
func (m *JWTManager) GetAccessTokenDuration() int64 {
	return int64(m.accessTokenDuration.Seconds())
}

// GetRefreshTokenDuration returns the refresh token lifetime
func (m *JWTManager) GetRefreshTokenDuration() time.Duration {
	return m.refreshTokenDuration
}

func (m *JWTManager) keyFunc(*jwt.Token) (interface{}, error) {
	return m.secret, nil
}
