// internal/watcher/transport.go
package watcher

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// LogSubscription is one live per-wallet log stream.
// *ws.LogSubscription satisfies it.
type LogSubscription interface {
	Recv(ctx context.Context) (*ws.LogResult, error)
	Unsubscribe()
}

// Conn is the subscription transport for one session.
type Conn interface {
	SubscribeWalletLogs(wallet solana.PublicKey) (LogSubscription, error)
	Close()
}

// DialFunc opens a subscription transport. Injected so tests can run
// sessions against a fake.
type DialFunc func(ctx context.Context, wsURL string) (Conn, error)

// TransactionFetcher fetches the full transaction behind a log
// notification. *rpc.Client satisfies it.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Dial connects to the Solana websocket endpoint.
func Dial(ctx context.Context, wsURL string) (Conn, error) {
	client, err := ws.Connect(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	return &wsConn{client: client}, nil
}

type wsConn struct {
	client *ws.Client
}

func (c *wsConn) SubscribeWalletLogs(wallet solana.PublicKey) (LogSubscription, error) {
	sub, err := c.client.LogsSubscribeMentions(wallet, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *wsConn) Close() {
	c.client.Close()
}
