// internal/config/config.go
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config is the validated settings object consumed by the pipeline.
// The on-disk format and any configuration UI live outside this
// module; only these fields are read.
type Config struct {
	RPCURL          string  `mapstructure:"rpc_url"`
	WSURL           string  `mapstructure:"ws_url"`
	PrivateKey      string  `mapstructure:"private_key"`
	BuyAmountSOL    float64 `mapstructure:"buy_amount_sol"`
	SlippagePercent float64 `mapstructure:"slippage_percent"`
	Wallets         string  `mapstructure:"wallets"` // comma-separated addresses
	LedgerPath      string  `mapstructure:"ledger_path"`
	JupiterBaseURL  string  `mapstructure:"jupiter_base_url"`
	LogFile         string  `mapstructure:"log_file"`
	DebugLogging    bool    `mapstructure:"debug_logging"`
}

const (
	DefaultLedgerPath      = "data/holdings.json"
	DefaultLogFile         = "logs/copybot.log"
	DefaultSlippagePercent = 1.0
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"ledger_path":      DefaultLedgerPath,
		"log_file":         DefaultLogFile,
		"slippage_percent": DefaultSlippagePercent,
		"jupiter_base_url": "https://quote-api.jup.ag/v6",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("COPYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if env := v.GetString("PRIVATE_KEY"); env != "" {
		cfg.PrivateKey = env
	}

	return &cfg, Validate(&cfg)
}

// Validate checks the fields the pipeline depends on. Wallet addresses
// are deliberately not validated here: malformed entries are skipped
// per-address at subscription time.
func Validate(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.WSURL == "" {
		return errors.New("missing ws_url in configuration")
	}
	if err := validateURLWithCache(cfg.WSURL, "ws"); err != nil {
		return errors.New("invalid WebSocket URL protocol")
	}
	if cfg.JupiterBaseURL != "" {
		if err := validateURLWithCache(cfg.JupiterBaseURL, "http"); err != nil {
			return errors.New("invalid Jupiter URL protocol")
		}
	}
	if cfg.Wallets == "" {
		return errors.New("no wallets configured")
	}
	if cfg.BuyAmountSOL < 0 {
		return errors.New("invalid buy_amount_sol")
	}
	if cfg.SlippagePercent < 0 || cfg.SlippagePercent > 100 {
		return errors.New("invalid slippage_percent")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	cached, ok := urlCache.Load(rawURL)
	parsed, valid := cached.(*url.URL)
	if !ok || !valid {
		var err error
		parsed, err = url.Parse(rawURL)
		if err != nil {
			return errors.New("invalid URL format")
		}
		urlCache.Store(rawURL, parsed)
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}
