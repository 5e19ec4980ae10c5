// Package vault retrieves judge provider API keys from HashiCorp Vault.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"trade-signal-engine/config"
)

// Client wraps the HashiCorp Vault client. With Vault disabled it serves
// only what was stored locally, which keeps development setups simple.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]string // judgeID -> api key
}

// NewClient creates a Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]string),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// JudgeAPIKey returns the provider API key for one judge from the KV v2
// mount, caching reads for the process lifetime
func (c *Client) JudgeAPIKey(ctx context.Context, judgeID string) (string, error) {
	c.mu.RLock()
	if key, ok := c.cache[judgeID]; ok {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return "", fmt.Errorf("no cached key for judge %s and vault is disabled", judgeID)
	}

	path := fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, judgeID)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read judge key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no vault secret for judge %s", judgeID)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid secret format for judge %s", judgeID)
	}
	key, _ := data["api_key"].(string)
	if key == "" {
		return "", fmt.Errorf("empty api_key for judge %s", judgeID)
	}

	c.mu.Lock()
	c.cache[judgeID] = key
	c.mu.Unlock()

	return key, nil
}

// ResolveJudgeKeys fills in any judge configs missing an API key from
// Vault. Judges with a key already set in config are left alone.
func (c *Client) ResolveJudgeKeys(ctx context.Context, judges []config.JudgeConfig) ([]config.JudgeConfig, error) {
	out := make([]config.JudgeConfig, len(judges))
	copy(out, judges)

	for i := range out {
		if out[i].APIKey != "" {
			continue
		}
		key, err := c.JudgeAPIKey(ctx, out[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve key for judge %s: %w", out[i].ID, err)
		}
		out[i].APIKey = key
	}
	return out, nil
}
