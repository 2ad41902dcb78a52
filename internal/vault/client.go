package vault

import (
	"context"
	"fmt"
	"sync"

	"chartpilot/config"

	"github.com/hashicorp/vault/api"
)

// ProviderKeyData represents an LLM provider credential stored in Vault
type ProviderKeyData struct {
	APIKey   string `json:"api_key"`
	Provider string `json:"provider"`
	Label    string `json:"label"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*ProviderKeyData // userID/provider -> key cache
	cacheEnabled bool
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]*ProviderKeyData),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]*ProviderKeyData),
		cacheEnabled: true,
	}, nil
}

// StoreProviderKey stores an LLM provider key for a user in Vault
func (c *Client) StoreProviderKey(ctx context.Context, userID string, data ProviderKeyData) error {
	if !c.config.Enabled {
		// Store in local cache only (for development/testing)
		c.mu.Lock()
		c.cache[c.cacheKey(userID, data.Provider)] = &data
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(userID, data.Provider)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":  data.APIKey,
			"provider": data.Provider,
			"label":    data.Label,
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, path, secretData)
	if err != nil {
		return fmt.Errorf("failed to store provider key in vault: %w", err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[c.cacheKey(userID, data.Provider)] = &data
		c.mu.Unlock()
	}

	return nil
}

// GetProviderKey retrieves an LLM provider key for a user from Vault
func (c *Client) GetProviderKey(ctx context.Context, userID, provider string) (*ProviderKeyData, error) {
	// Check cache first
	if c.cacheEnabled {
		c.mu.RLock()
		if cached, ok := c.cache[c.cacheKey(userID, provider)]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("provider key not found and vault is disabled")
	}

	path := c.secretPath(userID, provider)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider key from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("provider key not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	keyData := &ProviderKeyData{
		APIKey:   getString(data, "api_key"),
		Provider: getString(data, "provider"),
		Label:    getString(data, "label"),
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[c.cacheKey(userID, provider)] = keyData
		c.mu.Unlock()
	}

	return keyData, nil
}

// DeleteProviderKey deletes an LLM provider key for a user from Vault
func (c *Client) DeleteProviderKey(ctx context.Context, userID, provider string) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(userID, provider))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.metadataPath(userID, provider)

	_, err := c.client.Logical().DeleteWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to delete provider key from vault: %w", err)
	}

	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*ProviderKeyData)
	c.mu.Unlock()
}

// InvalidateCacheForUser removes cached keys for a specific user
func (c *Client) InvalidateCacheForUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := userID + "/"
	for key := range c.cache {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.cache, key)
		}
	}
}

// SetCacheEnabled enables or disables caching
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the path for storing a secret
func (c *Client) secretPath(userID, provider string) string {
	return fmt.Sprintf("%s/data/%s/%s/%s", c.config.MountPath, c.config.SecretPath, userID, provider)
}

// metadataPath returns the metadata path for a secret
func (c *Client) metadataPath(userID, provider string) string {
	return fmt.Sprintf("%s/metadata/%s/%s/%s", c.config.MountPath, c.config.SecretPath, userID, provider)
}

// cacheKey returns the cache key for a provider key
func (c *Client) cacheKey(userID, provider string) string {
	return fmt.Sprintf("%s/%s", userID, provider)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// NewMockClient creates a mock client for testing
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{
			Enabled: false,
		},
		cache:        make(map[string]*ProviderKeyData),
		cacheEnabled: true,
	}
}
