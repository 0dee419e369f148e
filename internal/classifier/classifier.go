// internal/classifier/classifier.go
package classifier

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeKind is the direction of a detected trade.
type TradeKind string

const (
	TradeKindBuy  TradeKind = "buy"
	TradeKindSell TradeKind = "sell"
)

// Currency representation chosen for the delta in step 3 of Classify.
const (
	CurrencyNative  = "native"
	CurrencyWrapped = "wrapped"
)

var (
	wsolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	// Known swap program identifiers. Exact match against top-level and
	// inner instruction program ids.
	dexPrograms = map[solana.PublicKey]string{
		solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"): "raydium-amm-v4",
		solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"): "raydium-cpmm",
		solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"):  "jupiter-v6",
		solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"):  "pumpfun",
		solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"):  "pumpswap",
		solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"):  "orca-whirlpool",
		solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"):  "meteora-dlmm",
	}

	// Deltas below these magnitudes are fee/rent noise, not trades.
	dustCurrency = decimal.New(1, -5)
	dustToken    = decimal.New(1, -6)

	lamportsPerSOL = decimal.New(1, 9)
)

// TokenInfo identifies the traded token.
type TokenInfo struct {
	Mint     string
	Symbol   string
	Decimals uint8
}

// DetectedTrade is the classifier's verdict for one transaction.
// At most one is produced per transaction.
type DetectedTrade struct {
	Kind             TradeKind
	Token            TokenInfo
	TokenAmount      decimal.Decimal
	CurrencyAmount   decimal.Decimal
	CurrencyMint     string
	CurrencySource   string
	Signature        string
	TriggeringWallet string
	Timestamp        time.Time
}

// Analysis is the combined result of AnalyzeTransaction.
type Analysis struct {
	IsDexTransaction bool
	Trade            *DetectedTrade
}

// Classifier decides whether a fetched transaction represents a
// buy or sell by the monitored wallet, by diffing balance snapshots.
type Classifier struct {
	logger *zap.Logger
	meta   *MetadataCache
}

func New(meta *MetadataCache, logger *zap.Logger) *Classifier {
	return &Classifier{
		logger: logger.Named("classifier"),
		meta:   meta,
	}
}

// IsDexInteraction reports whether any top-level or inner instruction
// targets a known swap program.
func (c *Classifier) IsDexInteraction(tx *solana.Transaction, meta *rpc.TransactionMeta) bool {
	if tx == nil {
		return false
	}
	keys := tx.Message.AccountKeys

	programAt := func(idx uint16) (solana.PublicKey, bool) {
		if int(idx) >= len(keys) {
			return solana.PublicKey{}, false
		}
		return keys[idx], true
	}

	for _, inst := range tx.Message.Instructions {
		if program, ok := programAt(inst.ProgramIDIndex); ok {
			if _, known := dexPrograms[program]; known {
				return true
			}
		}
	}
	if meta != nil {
		for _, inner := range meta.InnerInstructions {
			for _, inst := range inner.Instructions {
				if program, ok := programAt(inst.ProgramIDIndex); ok {
					if _, known := dexPrograms[program]; known {
						return true
					}
				}
			}
		}
	}
	return false
}

// Classify diffs the wallet's balance snapshots and returns the first
// trade consistent with the currency movement, or nil when none is.
func (c *Classifier) Classify(ctx context.Context, tx *solana.Transaction, meta *rpc.TransactionMeta, wallet solana.PublicKey, signature string) *DetectedTrade {
	if tx == nil || meta == nil {
		return nil
	}

	nativeDelta := c.nativeDelta(tx, meta, wallet)
	wrappedDelta := c.tokenDelta(meta, wallet, wsolMint)

	currencyDelta := nativeDelta
	currencySource := CurrencyNative
	if nativeDelta.Abs().LessThanOrEqual(dustCurrency) {
		currencyDelta = wrappedDelta
		currencySource = CurrencyWrapped
	}

	if currencyDelta.Abs().LessThanOrEqual(dustCurrency) {
		c.logger.Debug("No currency movement above dust threshold",
			zap.String("signature", signature),
			zap.String("native_delta", nativeDelta.String()),
			zap.String("wrapped_delta", wrappedDelta.String()))
		return nil
	}

	for _, mint := range c.touchedMints(meta) {
		delta := c.tokenDelta(meta, wallet, mint)
		if delta.Abs().LessThanOrEqual(dustToken) {
			continue
		}

		var kind TradeKind
		switch {
		case delta.IsPositive() && currencyDelta.IsNegative():
			kind = TradeKindBuy
		case delta.IsNegative() && currencyDelta.IsPositive():
			kind = TradeKindSell
		default:
			continue
		}

		token := c.resolveToken(ctx, meta, mint)
		trade := &DetectedTrade{
			Kind:             kind,
			Token:            token,
			TokenAmount:      delta.Abs(),
			CurrencyAmount:   currencyDelta.Abs(),
			CurrencyMint:     wsolMint.String(),
			CurrencySource:   currencySource,
			Signature:        signature,
			TriggeringWallet: wallet.String(),
			Timestamp:        time.Now().UTC(),
		}

		c.logger.Info("Trade detected",
			zap.String("kind", string(kind)),
			zap.String("mint", token.Mint),
			zap.String("symbol", token.Symbol),
			zap.String("token_amount", trade.TokenAmount.String()),
			zap.String("currency_amount", trade.CurrencyAmount.String()),
			zap.String("currency_source", currencySource),
			zap.String("signature", signature))

		// Multi-leg swaps are not decomposed; the first consistent
		// mint wins.
		return trade
	}

	return nil
}

// AnalyzeTransaction composes the DEX check and classification.
// Non-DEX transactions skip the balance-diff work entirely.
func (c *Classifier) AnalyzeTransaction(ctx context.Context, tx *solana.Transaction, meta *rpc.TransactionMeta, wallet solana.PublicKey, signature string) Analysis {
	if !c.IsDexInteraction(tx, meta) {
		return Analysis{IsDexTransaction: false}
	}
	return Analysis{
		IsDexTransaction: true,
		Trade:            c.Classify(ctx, tx, meta, wallet, signature),
	}
}

// nativeDelta computes the wallet's SOL balance change (post - pre).
func (c *Classifier) nativeDelta(tx *solana.Transaction, meta *rpc.TransactionMeta, wallet solana.PublicKey) decimal.Decimal {
	idx := -1
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(wallet) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(meta.PreBalances) || idx >= len(meta.PostBalances) {
		return decimal.Zero
	}

	pre := decimal.NewFromUint64(meta.PreBalances[idx])
	post := decimal.NewFromUint64(meta.PostBalances[idx])
	return post.Sub(pre).Div(lamportsPerSOL)
}

// tokenDelta computes the wallet's balance change for one mint across
// every token account it owns, in UI units.
func (c *Classifier) tokenDelta(meta *rpc.TransactionMeta, wallet solana.PublicKey, mint solana.PublicKey) decimal.Decimal {
	sum := func(balances []rpc.TokenBalance) decimal.Decimal {
		total := decimal.Zero
		for _, tb := range balances {
			if tb.Owner == nil || !tb.Owner.Equals(wallet) || !tb.Mint.Equals(mint) {
				continue
			}
			if tb.UiTokenAmount == nil {
				continue
			}
			amount, err := decimal.NewFromString(tb.UiTokenAmount.Amount)
			if err != nil {
				continue
			}
			total = total.Add(amount.Shift(-int32(tb.UiTokenAmount.Decimals)))
		}
		return total
	}

	return sum(meta.PostTokenBalances).Sub(sum(meta.PreTokenBalances))
}

// touchedMints returns every non-currency mint appearing in the pre or
// post token balances, in discovery order.
func (c *Classifier) touchedMints(meta *rpc.TransactionMeta) []solana.PublicKey {
	seen := make(map[solana.PublicKey]bool)
	var mints []solana.PublicKey

	collect := func(balances []rpc.TokenBalance) {
		for _, tb := range balances {
			if tb.Mint.Equals(wsolMint) || seen[tb.Mint] {
				continue
			}
			seen[tb.Mint] = true
			mints = append(mints, tb.Mint)
		}
	}
	collect(meta.PreTokenBalances)
	collect(meta.PostTokenBalances)
	return mints
}

// resolveToken fills in symbol and decimals, preferring the decimals
// already present in the transaction's token balance records. A failed
// metadata lookup degrades to a truncated-mint symbol.
func (c *Classifier) resolveToken(ctx context.Context, meta *rpc.TransactionMeta, mint solana.PublicKey) TokenInfo {
	info := TokenInfo{Mint: mint.String()}

	for _, tb := range append(meta.PostTokenBalances, meta.PreTokenBalances...) {
		if tb.Mint.Equals(mint) && tb.UiTokenAmount != nil {
			info.Decimals = tb.UiTokenAmount.Decimals
			break
		}
	}

	md, err := c.meta.Lookup(ctx, mint)
	if err != nil || md.Symbol == "" {
		if err != nil {
			c.logger.Debug("Token metadata lookup failed, using fallback",
				zap.String("mint", info.Mint), zap.Error(err))
		}
		info.Symbol = FallbackSymbol(info.Mint)
		return info
	}

	info.Symbol = md.Symbol
	if info.Decimals == 0 && md.Decimals > 0 {
		info.Decimals = md.Decimals
	}
	return info
}
