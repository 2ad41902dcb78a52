package aikeys

import (
	"context"
	"fmt"

	"chartpilot/internal/database"
	"chartpilot/internal/vault"
)

// validProviders is the set of LLM providers a key may be stored for
var validProviders = map[string]bool{
	"openai":   true,
	"gemini":   true,
	"claude":   true,
	"deepseek": true,
}

// Service manages per-user LLM provider keys. Key material lives in
// Vault when Vault is enabled; otherwise it is encrypted into Postgres
// with AES-256-GCM. The database row always carries the metadata
// (provider, last four, label) either way.
type Service struct {
	repo   *database.Repository
	cipher *Cipher
	vault  *vault.Client
}

// NewService creates a new AI key service
func NewService(repo *database.Repository, cipher *Cipher, vaultClient *vault.Client) *Service {
	return &Service{
		repo:   repo,
		cipher: cipher,
		vault:  vaultClient,
	}
}

// KeyResult contains a decrypted provider key
type KeyResult struct {
	APIKey   string
	Provider string
}

// StoreKey encrypts and stores a provider key for a user
func (s *Service) StoreKey(ctx context.Context, userID, provider, apiKey, label string) (*database.UserAIKey, error) {
	if !validProviders[provider] {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	key := &database.UserAIKey{
		UserID:      userID,
		Provider:    provider,
		KeyLastFour: LastFour(apiKey),
		Label:       label,
		IsActive:    true,
	}

	if s.vault != nil && s.vault.IsEnabled() {
		if err := s.vault.StoreProviderKey(ctx, userID, vault.ProviderKeyData{
			APIKey:   apiKey,
			Provider: provider,
			Label:    label,
		}); err != nil {
			return nil, fmt.Errorf("failed to store key in vault: %w", err)
		}
	} else {
		encrypted, err := s.cipher.Encrypt(apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt key: %w", err)
		}
		key.EncryptedKey = encrypted
	}

	if err := s.repo.UpsertAIKey(ctx, key); err != nil {
		return nil, err
	}

	return key, nil
}

// GetDecryptedKey returns the plaintext key for a user and provider.
// Returns nil when the user has no active key for the provider.
func (s *Service) GetDecryptedKey(ctx context.Context, userID, provider string) (*KeyResult, error) {
	key, err := s.repo.GetActiveAIKey(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}

	if s.vault != nil && s.vault.IsEnabled() {
		data, err := s.vault.GetProviderKey(ctx, userID, provider)
		if err != nil {
			return nil, fmt.Errorf("failed to read key from vault: %w", err)
		}
		return &KeyResult{APIKey: data.APIKey, Provider: provider}, nil
	}

	if key.EncryptedKey == "" {
		return nil, fmt.Errorf("key material missing for provider %s", provider)
	}

	decrypted, err := s.cipher.Decrypt(key.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}

	return &KeyResult{APIKey: decrypted, Provider: provider}, nil
}

// ListKeys returns a user's stored keys with ciphertext stripped
func (s *Service) ListKeys(ctx context.Context, userID string) ([]*database.UserAIKey, error) {
	keys, err := s.repo.GetAIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		key.EncryptedKey = ""
	}
	return keys, nil
}

// DeleteKey removes a user's key for a provider
func (s *Service) DeleteKey(ctx context.Context, userID, provider string) error {
	if s.vault != nil && s.vault.IsEnabled() {
		if err := s.vault.DeleteProviderKey(ctx, userID, provider); err != nil {
			return err
		}
	}
	return s.repo.DeleteAIKey(ctx, userID, provider)
}

// EncryptSecret encrypts an arbitrary secret, such as chart session cookies
func (s *Service) EncryptSecret(plaintext string) (string, error) {
	return s.cipher.Encrypt(plaintext)
}

// DecryptSecret decrypts a secret produced by EncryptSecret
func (s *Service) DecryptSecret(ciphertext string) (string, error) {
	return s.cipher.Decrypt(ciphertext)
}
