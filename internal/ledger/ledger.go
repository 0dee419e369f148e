// internal/ledger/ledger.go
package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Holding is the net accumulated position in one token. Amounts are
// smallest-unit integers kept as decimal strings so positions survive
// values beyond uint64.
type Holding struct {
	TokenMint     string    `json:"tokenMint"`
	Amount        string    `json:"amount"`
	CurrencySpent string    `json:"currencySpent"`
	LastSignature string    `json:"lastTxSignature"`
	LastWallet    string    `json:"lastTriggeringWallet"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	TokenSymbol   string    `json:"tokenSymbol"`
	TokenDecimals uint8     `json:"tokenDecimals"`
}

// validate checks a record loaded from disk. Malformed records are
// dropped individually rather than failing the whole load.
func (h *Holding) validate(mint string) error {
	if h.TokenMint == "" {
		h.TokenMint = mint
	}
	if h.TokenMint != mint {
		return fmt.Errorf("mint mismatch: key %s vs record %s", mint, h.TokenMint)
	}
	if _, err := parseAmount(h.Amount); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if _, err := parseAmount(h.CurrencySpent); err != nil {
		return fmt.Errorf("invalid currencySpent: %w", err)
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	return n, nil
}

// Ledger is an in-memory mint->Holding map backed by whole-file JSON
// persistence. Every mutation rewrites the file before returning.
// The mutex also serializes concurrent read-modify-write cycles for
// the same mint across trade executions.
type Ledger struct {
	mu       sync.Mutex
	path     string
	holdings map[string]*Holding
	logger   *zap.Logger
}

func New(path string, logger *zap.Logger) *Ledger {
	return &Ledger{
		path:     path,
		holdings: make(map[string]*Holding),
		logger:   logger.Named("ledger"),
	}
}

// Load reads the ledger file. A missing file yields an empty ledger;
// so does an unreadable or unparsable one (fail-open). Returns the
// number of records dropped by validation.
func (l *Ledger) Load() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.holdings = make(map[string]*Holding)

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("No ledger file found, starting empty", zap.String("path", l.path))
		} else {
			l.logger.Warn("Failed to read ledger file, starting empty",
				zap.String("path", l.path), zap.Error(err))
		}
		return 0
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		l.logger.Warn("Failed to parse ledger file, starting empty",
			zap.String("path", l.path), zap.Error(err))
		return 0
	}

	dropped := 0
	for mint, rec := range raw {
		var h Holding
		if err := json.Unmarshal(rec, &h); err != nil {
			l.logger.Warn("Dropping malformed ledger record",
				zap.String("mint", mint), zap.Error(err))
			dropped++
			continue
		}
		if err := h.validate(mint); err != nil {
			l.logger.Warn("Dropping invalid ledger record",
				zap.String("mint", mint), zap.Error(err))
			dropped++
			continue
		}
		l.holdings[mint] = &h
	}

	l.logger.Info("Ledger loaded",
		zap.Int("holdings", len(l.holdings)),
		zap.Int("dropped", dropped))
	return dropped
}

// AddOrUpdate merges a successful buy into the ledger and persists
// synchronously. Amounts accumulate by exact integer addition; the
// signature, wallet and timestamp are overwritten with the latest.
func (l *Ledger) AddOrUpdate(mint, amountBought, currencySpent, txSig, triggeringWallet, symbol string, decimals uint8) error {
	bought, err := parseAmount(amountBought)
	if err != nil {
		return fmt.Errorf("invalid bought amount: %w", err)
	}
	spent, err := parseAmount(currencySpent)
	if err != nil {
		return fmt.Errorf("invalid spent amount: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.holdings[mint]; ok {
		prevAmount, _ := parseAmount(existing.Amount)
		prevSpent, _ := parseAmount(existing.CurrencySpent)
		existing.Amount = new(big.Int).Add(prevAmount, bought).String()
		existing.CurrencySpent = new(big.Int).Add(prevSpent, spent).String()
		existing.LastSignature = txSig
		existing.LastWallet = triggeringWallet
		existing.LastTimestamp = time.Now().UTC()
		if symbol != "" {
			existing.TokenSymbol = symbol
		}
	} else {
		l.holdings[mint] = &Holding{
			TokenMint:     mint,
			Amount:        bought.String(),
			CurrencySpent: spent.String(),
			LastSignature: txSig,
			LastWallet:    triggeringWallet,
			LastTimestamp: time.Now().UTC(),
			TokenSymbol:   symbol,
			TokenDecimals: decimals,
		}
	}

	return l.persistLocked()
}

// Remove deletes the holding for mint after a full liquidation.
// Removing an untracked mint is a no-op with a warning.
func (l *Ledger) Remove(mint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.holdings[mint]; !ok {
		l.logger.Warn("Remove called for untracked mint", zap.String("mint", mint))
		return nil
	}
	delete(l.holdings, mint)
	return l.persistLocked()
}

// Get returns a copy of the holding for mint, if tracked.
func (l *Ledger) Get(mint string) (Holding, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holdings[mint]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// GetAll returns a copy of every tracked holding.
func (l *Ledger) GetAll() map[string]Holding {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Holding, len(l.holdings))
	for mint, h := range l.holdings {
		out[mint] = *h
	}
	return out
}

// Count returns the number of tracked holdings.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holdings)
}

func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(l.holdings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	return nil
}
