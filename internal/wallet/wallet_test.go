package wallet

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	return solana.NewWallet().PrivateKey
}

func TestDecodePrivateKey_Base58(t *testing.T) {
	key := testKey(t)

	decoded, err := DecodePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, []byte(key), []byte(decoded))
}

func TestDecodePrivateKey_JSONArray(t *testing.T) {
	key := testKey(t)
	nums := make([]int, len(key))
	for i, b := range key {
		nums[i] = int(b)
	}
	encoded, err := json.Marshal(nums)
	require.NoError(t, err)

	decoded, err := DecodePrivateKey(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), []byte(decoded))
}

func TestDecodePrivateKey_CommaList(t *testing.T) {
	key := testKey(t)
	parts := make([]string, len(key))
	for i, b := range key {
		parts[i] = fmt.Sprintf("%d", b)
	}

	decoded, err := DecodePrivateKey(strings.Join(parts, ", "))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), []byte(decoded))
}

func TestDecodePrivateKey_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		material string
	}{
		{"empty", ""},
		{"garbage base58", "not!!valid@@base58"},
		{"wrong length array", "[1,2,3]"},
		{"byte out of range", strings.Repeat("300,", 63) + "300"},
		{"non-numeric list", "1,2,three," + strings.Repeat("4,", 60) + "4"},
		{"malformed json", "[1,2,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePrivateKey(tt.material)
			assert.Error(t, err)
		})
	}
}

func TestNew_DerivesPublicKey(t *testing.T) {
	key := testKey(t)

	w, err := New(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), w.PublicKey)
	assert.Equal(t, key.PublicKey().String(), w.String())
}

func TestSignTransaction(t *testing.T) {
	key := testKey(t)
	w, err := New(key.String())
	require.NoError(t, err)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			solana.NewInstruction(
				solana.MemoProgramID,
				[]*solana.AccountMeta{solana.Meta(w.PublicKey).SIGNER().WRITE()},
				[]byte("ping"),
			),
		},
		solana.Hash{},
		solana.TransactionPayer(w.PublicKey),
	)
	require.NoError(t, err)

	require.NoError(t, w.SignTransaction(tx))
	assert.NotEmpty(t, tx.Signatures)
}

func TestATA_Deterministic(t *testing.T) {
	w, err := New(testKey(t).String())
	require.NoError(t, err)

	mint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	first, err := w.ATA(mint)
	require.NoError(t, err)
	second, err := w.ATA(mint)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, first.IsZero())
}
