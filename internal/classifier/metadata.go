// internal/classifier/metadata.go
package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const metadataTTL = 5 * time.Minute

// AccountInfoClient is the single RPC call the metadata cache needs.
// *rpc.Client satisfies it.
type AccountInfoClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// TokenMetadata describes a mint as far as classification cares.
type TokenMetadata struct {
	Symbol    string
	Decimals  uint8
	UpdatedAt time.Time
}

// MetadataCache memoizes token metadata for the lifetime of a session.
// Lookups that fail are not cached so a later transaction can retry.
type MetadataCache struct {
	client AccountInfoClient
	cache  sync.Map
	logger *zap.Logger
}

func NewMetadataCache(client AccountInfoClient, logger *zap.Logger) *MetadataCache {
	return &MetadataCache{
		client: client,
		logger: logger.Named("token-metadata"),
	}
}

// Lookup resolves symbol and decimals for mint, consulting the cache,
// the well-known token table and finally the mint account on chain.
func (c *MetadataCache) Lookup(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	key := mint.String()
	if value, ok := c.cache.Load(key); ok {
		md := value.(*TokenMetadata)
		if time.Since(md.UpdatedAt) < metadataTTL {
			return md, nil
		}
		c.cache.Delete(key)
	}

	md := &TokenMetadata{}
	if symbol, ok := knownTokens[key]; ok {
		md.Symbol = symbol
	}

	decimals, err := c.decimalsFromChain(ctx, mint)
	if err != nil {
		if md.Symbol == "" {
			return nil, err
		}
		c.logger.Debug("Failed to read mint decimals on chain",
			zap.String("mint", key), zap.Error(err))
	} else {
		md.Decimals = decimals
	}

	md.UpdatedAt = time.Now()
	c.cache.Store(key, md)

	c.logger.Debug("Token metadata resolved",
		zap.String("mint", key),
		zap.String("symbol", md.Symbol),
		zap.Uint8("decimals", md.Decimals))
	return md, nil
}

// decimalsFromChain reads the decimals byte of the SPL mint account.
func (c *MetadataCache) decimalsFromChain(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	acc, err := c.client.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to get mint account: %w", err)
	}
	if acc == nil || acc.Value == nil {
		return 0, fmt.Errorf("mint account not found: %s", mint)
	}

	data := acc.Value.Data.GetBinary()
	if len(data) < 45 {
		return 0, fmt.Errorf("invalid mint account data length: %d", len(data))
	}
	return data[44], nil
}

var knownTokens = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
}

// FallbackSymbol is used when metadata resolution fails: the mint
// truncated to something readable.
func FallbackSymbol(mint string) string {
	if len(mint) >= 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
