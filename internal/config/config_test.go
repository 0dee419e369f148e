package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
rpc_url: "https://api.mainnet-beta.solana.com"
ws_url: "wss://api.mainnet-beta.solana.com"
private_key: "some-key"
buy_amount_sol: 0.05
wallets: "WalletA, WalletB"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPCURL)
	assert.Equal(t, "wss://api.mainnet-beta.solana.com", cfg.WSURL)
	assert.Equal(t, 0.05, cfg.BuyAmountSOL)
	assert.Equal(t, "WalletA, WalletB", cfg.Wallets)

	// Defaults fill the unset fields.
	assert.Equal(t, DefaultLedgerPath, cfg.LedgerPath)
	assert.Equal(t, DefaultLogFile, cfg.LogFile)
	assert.Equal(t, DefaultSlippagePercent, cfg.SlippagePercent)
	assert.Equal(t, "https://quote-api.jup.ag/v6", cfg.JupiterBaseURL)
}

func TestLoad_PrivateKeyFromEnv(t *testing.T) {
	path := writeConfig(t, `
rpc_url: "https://api.mainnet-beta.solana.com"
ws_url: "wss://api.mainnet-beta.solana.com"
private_key: "file-key"
wallets: "WalletA"
`)

	t.Setenv("COPYBOT_PRIVATE_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.PrivateKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RPCURL:          "https://rpc.example.com",
			WSURL:           "wss://rpc.example.com",
			Wallets:         "WalletA",
			BuyAmountSOL:    0.1,
			SlippagePercent: 1.0,
		}
	}

	assert.NoError(t, Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc url", func(c *Config) { c.RPCURL = "" }},
		{"rpc url wrong scheme", func(c *Config) { c.RPCURL = "ftp://rpc.example.com" }},
		{"missing ws url", func(c *Config) { c.WSURL = "" }},
		{"ws url wrong scheme", func(c *Config) { c.WSURL = "https://rpc.example.com" }},
		{"bad jupiter url", func(c *Config) { c.JupiterBaseURL = "ws://jup.example.com" }},
		{"no wallets", func(c *Config) { c.Wallets = "" }},
		{"negative buy amount", func(c *Config) { c.BuyAmountSOL = -1 }},
		{"negative slippage", func(c *Config) { c.SlippagePercent = -0.5 }},
		{"slippage above 100", func(c *Config) { c.SlippagePercent = 101 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
