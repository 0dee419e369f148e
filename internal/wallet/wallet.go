// internal/wallet/wallet.go
package wallet

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Wallet holds the signing key used to mirror detected trades.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// New builds a wallet from key material. Three encodings are accepted:
// a JSON numeric array ("[12,34,...]"), a bare comma-separated numeric
// list ("12,34,...") and a base58 string.
func New(keyMaterial string) (*Wallet, error) {
	priv, err := DecodePrivateKey(keyMaterial)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		PrivateKey: priv,
		PublicKey:  priv.PublicKey(),
	}, nil
}

// DecodePrivateKey parses key material in any of the supported encodings.
func DecodePrivateKey(keyMaterial string) (solana.PrivateKey, error) {
	s := strings.TrimSpace(keyMaterial)
	if s == "" {
		return nil, fmt.Errorf("empty private key")
	}

	switch {
	case strings.HasPrefix(s, "["):
		return decodeJSONArray(s)
	case strings.Contains(s, ","):
		return decodeNumericList(s)
	default:
		priv, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base58 private key: %w", err)
		}
		return priv, nil
	}
}

func decodeJSONArray(s string) (solana.PrivateKey, error) {
	var nums []int
	if err := json.Unmarshal([]byte(s), &nums); err != nil {
		return nil, fmt.Errorf("invalid JSON key array: %w", err)
	}
	return bytesFromInts(nums)
}

func decodeNumericList(s string) (solana.PrivateKey, error) {
	parts := strings.Split(s, ",")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid numeric key list: %w", err)
		}
		nums = append(nums, n)
	}
	return bytesFromInts(nums)
}

func bytesFromInts(nums []int) (solana.PrivateKey, error) {
	if len(nums) != 64 {
		return nil, fmt.Errorf("private key must be 64 bytes, got %d", len(nums))
	}
	key := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("private key byte %d out of range: %d", i, n)
		}
		key[i] = byte(n)
	}
	return solana.PrivateKey(key), nil
}

// SignTransaction signs tx with the wallet key.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// ATA returns the associated token account address for mint.
func (w *Wallet) ATA(mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account for %s: %w", mint, err)
	}
	return ata, nil
}

// String returns the wallet's public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
