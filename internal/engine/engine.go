// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/classifier"
	"github.com/rovshanmuradov/solana-copybot/internal/jupiter"
	"github.com/rovshanmuradov/solana-copybot/internal/ledger"
	"github.com/rovshanmuradov/solana-copybot/internal/wallet"
)

var wsolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// TradeConfig carries the fields the engine consumes from the opaque
// validated settings object.
type TradeConfig struct {
	PrivateKey      string
	BuyAmountSOL    float64
	SlippagePercent float64
}

// CopyTradeResult is always produced by ProcessCopyTrade, success or
// not. Failures carry a descriptive Error instead of propagating.
type CopyTradeResult struct {
	Success              bool
	Kind                 classifier.TradeKind
	TokenMint            string
	TokenSymbol          string
	Amount               decimal.Decimal
	Signature            string
	Error                string
	Timestamp            time.Time
	OriginatingSignature string
	TriggeringWallet     string
}

// ChainClient is the RPC surface the engine needs. *rpc.Client
// satisfies it.
type ChainClient interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// Engine mirrors detected trades through the swap aggregator and keeps
// the holdings ledger in step with what got executed.
type Engine struct {
	api      jupiter.SwapAPI
	chain    ChainClient
	holdings *ledger.Ledger
	logger   *zap.Logger

	confirmationTimeout time.Duration
}

func New(api jupiter.SwapAPI, chain ChainClient, holdings *ledger.Ledger, logger *zap.Logger) *Engine {
	return &Engine{
		api:                 api,
		chain:               chain,
		holdings:            holdings,
		logger:              logger.Named("engine"),
		confirmationTimeout: 60 * time.Second,
	}
}

// ProcessCopyTrade validates and executes one detected trade. It never
// returns an error; every failure mode becomes a failed result.
func (e *Engine) ProcessCopyTrade(ctx context.Context, trade *classifier.DetectedTrade, cfg *TradeConfig) CopyTradeResult {
	if trade == nil {
		return failedResult(nil, "no trade provided")
	}

	if err := e.validate(trade, cfg); err != nil {
		e.logger.Warn("Copy trade rejected by validation",
			zap.String("mint", trade.Token.Mint),
			zap.Error(err))
		return failedResult(trade, err.Error())
	}

	signer, err := wallet.New(cfg.PrivateKey)
	if err != nil {
		e.logger.Error("Failed to decode signing key", zap.Error(err))
		return failedResult(trade, fmt.Sprintf("failed to decode signing key: %v", err))
	}

	switch trade.Kind {
	case classifier.TradeKindBuy:
		return e.executeBuy(ctx, trade, cfg, signer)
	case classifier.TradeKindSell:
		return e.executeSell(ctx, trade, cfg, signer)
	default:
		return failedResult(trade, fmt.Sprintf("unsupported trade kind: %s", trade.Kind))
	}
}

func (e *Engine) validate(trade *classifier.DetectedTrade, cfg *TradeConfig) error {
	if trade.Kind != classifier.TradeKindBuy && trade.Kind != classifier.TradeKindSell {
		return fmt.Errorf("unsupported trade kind: %q", trade.Kind)
	}
	if !trade.TokenAmount.IsPositive() {
		return fmt.Errorf("token amount must be positive, got %s", trade.TokenAmount)
	}
	if !trade.CurrencyAmount.IsPositive() {
		return fmt.Errorf("currency amount must be positive, got %s", trade.CurrencyAmount)
	}
	if cfg == nil || cfg.PrivateKey == "" {
		return fmt.Errorf("no signing key configured")
	}
	if trade.Kind == classifier.TradeKindBuy && cfg.BuyAmountSOL <= 0 {
		return fmt.Errorf("buy amount must be positive, got %f", cfg.BuyAmountSOL)
	}
	return nil
}

// executeBuy spends the configured fixed SOL amount on the detected
// token. The ledger is updated only after the swap is confirmed;
// a ledger write failure does not invalidate the broadcast trade.
func (e *Engine) executeBuy(ctx context.Context, trade *classifier.DetectedTrade, cfg *TradeConfig, signer *wallet.Wallet) CopyTradeResult {
	mint, err := solana.PublicKeyFromBase58(trade.Token.Mint)
	if err != nil {
		return failedResult(trade, fmt.Sprintf("invalid token mint: %v", err))
	}

	lamports := decimal.NewFromFloat(cfg.BuyAmountSOL).Shift(9).Floor()
	if !lamports.IsPositive() {
		return failedResult(trade, "buy amount rounds to zero lamports")
	}
	spend := uint64(lamports.IntPart())
	slippageBps := int(cfg.SlippagePercent * 100)

	e.logger.Info("Executing copy buy",
		zap.String("mint", trade.Token.Mint),
		zap.String("symbol", trade.Token.Symbol),
		zap.Uint64("spend_lamports", spend),
		zap.Int("slippage_bps", slippageBps))

	quote, err := e.api.GetQuote(ctx, wsolMint, mint, spend, slippageBps)
	if err != nil {
		e.logger.Warn("Quote failed", zap.String("mint", trade.Token.Mint), zap.Error(err))
		return failedResult(trade, fmt.Sprintf("quote failed: %v", err))
	}

	rawTx, err := e.api.GetSwapTransaction(ctx, signer.PublicKey, quote)
	if err != nil {
		e.logger.Warn("Swap build failed", zap.String("mint", trade.Token.Mint), zap.Error(err))
		return failedResult(trade, fmt.Sprintf("swap build failed: %v", err))
	}

	sig, err := e.sendAndConfirm(ctx, rawTx, signer)
	if err != nil {
		return failedResult(trade, fmt.Sprintf("broadcast failed: %v", err))
	}

	if err := e.holdings.AddOrUpdate(
		trade.Token.Mint,
		quote.OutAmount,
		strconv.FormatUint(spend, 10),
		trade.Signature,
		trade.TriggeringWallet,
		trade.Token.Symbol,
		trade.Token.Decimals,
	); err != nil {
		// The swap is already on chain; a ledger write failure must not
		// turn a real trade into a failed result.
		e.logger.Error("Ledger update failed after confirmed buy",
			zap.String("mint", trade.Token.Mint),
			zap.String("signature", sig.String()),
			zap.Error(err))
	}

	e.logger.Info("Copy buy confirmed",
		zap.String("mint", trade.Token.Mint),
		zap.String("signature", sig.String()))

	result := successResult(trade, sig.String())
	if bought, parseErr := decimal.NewFromString(quote.OutAmount); parseErr == nil {
		result.Amount = bought.Shift(-int32(trade.Token.Decimals))
	}
	return result
}

// executeSell liquidates the full live on-chain balance of a tracked
// mint. A missing ledger entry is a deliberate skip: the engine never
// sells a token it has no record of buying.
func (e *Engine) executeSell(ctx context.Context, trade *classifier.DetectedTrade, cfg *TradeConfig, signer *wallet.Wallet) CopyTradeResult {
	if _, tracked := e.holdings.Get(trade.Token.Mint); !tracked {
		e.logger.Info("Skipping sell for untracked mint",
			zap.String("mint", trade.Token.Mint))
		return failedResult(trade, "no tracked holding for this token")
	}

	mint, err := solana.PublicKeyFromBase58(trade.Token.Mint)
	if err != nil {
		return failedResult(trade, fmt.Sprintf("invalid token mint: %v", err))
	}

	// Sell 100% of the live balance, not the cached ledger amount,
	// reconciling any drift since the last buy.
	liveBalance, err := e.liveBalance(ctx, signer, mint)
	if err != nil {
		return failedResult(trade, fmt.Sprintf("failed to read live balance: %v", err))
	}
	if liveBalance == 0 {
		return failedResult(trade, "live balance is zero")
	}

	slippageBps := int(cfg.SlippagePercent * 100)

	e.logger.Info("Executing copy sell",
		zap.String("mint", trade.Token.Mint),
		zap.String("symbol", trade.Token.Symbol),
		zap.Uint64("amount", liveBalance),
		zap.Int("slippage_bps", slippageBps))

	quote, err := e.api.GetQuote(ctx, mint, wsolMint, liveBalance, slippageBps)
	if err != nil {
		e.logger.Warn("Quote failed", zap.String("mint", trade.Token.Mint), zap.Error(err))
		return failedResult(trade, fmt.Sprintf("quote failed: %v", err))
	}

	rawTx, err := e.api.GetSwapTransaction(ctx, signer.PublicKey, quote)
	if err != nil {
		e.logger.Warn("Swap build failed", zap.String("mint", trade.Token.Mint), zap.Error(err))
		return failedResult(trade, fmt.Sprintf("swap build failed: %v", err))
	}

	sig, err := e.sendAndConfirm(ctx, rawTx, signer)
	if err != nil {
		return failedResult(trade, fmt.Sprintf("broadcast failed: %v", err))
	}

	if err := e.holdings.Remove(trade.Token.Mint); err != nil {
		e.logger.Error("Failed to remove holding after confirmed sell",
			zap.String("mint", trade.Token.Mint),
			zap.String("signature", sig.String()),
			zap.Error(err))
	}

	e.logger.Info("Copy sell confirmed",
		zap.String("mint", trade.Token.Mint),
		zap.String("signature", sig.String()))

	result := successResult(trade, sig.String())
	result.Amount = decimal.NewFromUint64(liveBalance).Shift(-int32(trade.Token.Decimals))
	return result
}

// liveBalance reads the wallet's current on-chain balance for mint in
// smallest units.
func (e *Engine) liveBalance(ctx context.Context, signer *wallet.Wallet, mint solana.PublicKey) (uint64, error) {
	ata, err := signer.ATA(mint)
	if err != nil {
		return 0, err
	}

	res, err := e.chain.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

func failedResult(trade *classifier.DetectedTrade, reason string) CopyTradeResult {
	result := CopyTradeResult{
		Success:   false,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	}
	if trade != nil {
		result.Kind = trade.Kind
		result.TokenMint = trade.Token.Mint
		result.TokenSymbol = trade.Token.Symbol
		result.Amount = trade.TokenAmount
		result.OriginatingSignature = trade.Signature
		result.TriggeringWallet = trade.TriggeringWallet
	}
	return result
}

func successResult(trade *classifier.DetectedTrade, signature string) CopyTradeResult {
	return CopyTradeResult{
		Success:              true,
		Kind:                 trade.Kind,
		TokenMint:            trade.Token.Mint,
		TokenSymbol:          trade.Token.Symbol,
		Signature:            signature,
		Timestamp:            time.Now().UTC(),
		OriginatingSignature: trade.Signature,
		TriggeringWallet:     trade.TriggeringWallet,
	}
}
