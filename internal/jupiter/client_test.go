package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	wsol     = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	someMint = solana.NewWallet().PublicKey()
)

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, wsol.String(), r.URL.Query().Get("inputMint"))
		assert.Equal(t, someMint.String(), r.URL.Query().Get("outputMint"))
		assert.Equal(t, "100000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "150", r.URL.Query().Get("slippageBps"))

		_, _ = w.Write([]byte(`{
			"inputMint": "` + wsol.String() + `",
			"outputMint": "` + someMint.String() + `",
			"inAmount": "100000000",
			"outAmount": "42000000",
			"priceImpactPct": "0.01",
			"slippageBps": 150,
			"routePlan": [{"percent": 100}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zaptest.NewLogger(t))
	quote, err := client.GetQuote(context.Background(), wsol, someMint, 100_000_000, 150)

	require.NoError(t, err)
	assert.Equal(t, "42000000", quote.OutAmount)
	assert.Equal(t, 150, quote.SlippageBps)
	assert.Contains(t, string(quote.Raw), "routePlan", "raw body must be kept verbatim for /swap")
}

func TestGetQuote_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"Could not find any route"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, zaptest.NewLogger(t))
	_, err := client.GetQuote(context.Background(), wsol, someMint, 1, 50)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "Could not find any route")
}

func TestGetSwapTransaction(t *testing.T) {
	signer := solana.NewWallet().PublicKey()
	rawQuote := json.RawMessage(`{"inputMint":"x","routePlan":[]}`)
	txBytes := []byte{1, 2, 3, 4, 5}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, string(rawQuote), string(req["quoteResponse"]))
		assert.JSONEq(t, `"`+signer.String()+`"`, string(req["userPublicKey"]))
		assert.JSONEq(t, "true", string(req["wrapAndUnwrapSol"]))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction":      base64.StdEncoding.EncodeToString(txBytes),
			"lastValidBlockHeight": 12345,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, zaptest.NewLogger(t))
	raw, err := client.GetSwapTransaction(context.Background(), signer, &Quote{Raw: rawQuote})

	require.NoError(t, err)
	assert.Equal(t, txBytes, raw)
}

func TestGetSwapTransaction_MissingQuote(t *testing.T) {
	client := NewClient("http://unused", zaptest.NewLogger(t))

	_, err := client.GetSwapTransaction(context.Background(), solana.NewWallet().PublicKey(), nil)
	assert.Error(t, err)

	_, err = client.GetSwapTransaction(context.Background(), solana.NewWallet().PublicKey(), &Quote{})
	assert.Error(t, err)
}

func TestGetSwapTransaction_EmptyTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"lastValidBlockHeight": 1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zaptest.NewLogger(t))
	_, err := client.GetSwapTransaction(context.Background(), solana.NewWallet().PublicKey(), &Quote{Raw: json.RawMessage(`{}`)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction")
}
