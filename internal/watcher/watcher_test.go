package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/classifier"
)

type fakeSub struct {
	results  chan *ws.LogResult
	unsubbed atomic.Bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{results: make(chan *ws.LogResult, 8)}
}

func (f *fakeSub) Recv(ctx context.Context) (*ws.LogResult, error) {
	select {
	case r := <-f.results:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSub) Unsubscribe() { f.unsubbed.Store(true) }

type fakeConn struct {
	mu      sync.Mutex
	subs    map[string]*fakeSub
	failAll bool
	closed  atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{subs: make(map[string]*fakeSub)}
}

func (f *fakeConn) SubscribeWalletLogs(wallet solana.PublicKey) (LogSubscription, error) {
	if f.failAll {
		return nil, errors.New("subscribe refused")
	}
	sub := newFakeSub()
	f.mu.Lock()
	f.subs[wallet.String()] = sub
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeConn) Close() { f.closed.Store(true) }

func (f *fakeConn) subFor(wallet solana.PublicKey) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[wallet.String()]
}

type fakeFetcher struct {
	calls atomic.Int64
	res   *rpc.GetTransactionResult
	err   error
}

func (f *fakeFetcher) GetTransaction(_ context.Context, _ solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.calls.Add(1)
	return f.res, f.err
}

type stubAccounts struct{}

func (stubAccounts) GetAccountInfo(context.Context, solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return nil, errors.New("unavailable")
}

func newTestWatcher(t *testing.T, conn *fakeConn, fetcher *fakeFetcher) *Watcher {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cls := classifier.New(classifier.NewMetadataCache(stubAccounts{}, logger), logger)
	dial := func(_ context.Context, _ string) (Conn, error) { return conn, nil }
	return New(dial, fetcher, cls, nil, logger)
}

func TestStartMonitoring_NoValidWallets(t *testing.T) {
	var dialed atomic.Int64
	logger := zaptest.NewLogger(t)
	cls := classifier.New(classifier.NewMetadataCache(stubAccounts{}, logger), logger)
	dial := func(_ context.Context, _ string) (Conn, error) {
		dialed.Add(1)
		return newFakeConn(), nil
	}
	w := New(dial, &fakeFetcher{}, cls, nil, logger)

	err := w.StartMonitoring(context.Background(), "ws://localhost", "garbage, also-garbage, ", nil)

	require.ErrorIs(t, err, ErrNoValidWallets)
	assert.Equal(t, int64(0), dialed.Load(), "transport must not be dialed without valid wallets")
	assert.False(t, w.Status().Running)

	select {
	case ev := <-w.Errors():
		assert.Equal(t, ErrorKindValidation, ev.Kind)
	default:
		t.Fatal("expected a validation error event")
	}
}

func TestStartMonitoring_SkipsMalformedAndDuplicates(t *testing.T) {
	conn := newFakeConn()
	w := newTestWatcher(t, conn, &fakeFetcher{})
	defer w.StopMonitoring()

	good := solana.NewWallet().PublicKey()
	csv := good.String() + ", bogus!!, " + good.String()

	require.NoError(t, w.StartMonitoring(context.Background(), "ws://localhost", csv, nil))

	status := w.Status()
	assert.True(t, status.Running)
	assert.Equal(t, []string{good.String()}, status.MonitoredWallets)
	assert.Equal(t, "connected", status.ConnectionStatus)
}

func TestStartMonitoring_AllSubscriptionsFail(t *testing.T) {
	conn := newFakeConn()
	conn.failAll = true
	w := newTestWatcher(t, conn, &fakeFetcher{})

	wallet := solana.NewWallet().PublicKey()
	err := w.StartMonitoring(context.Background(), "ws://localhost", wallet.String(), nil)

	require.ErrorIs(t, err, ErrNoSubscriptions)
	assert.True(t, conn.closed.Load(), "transport must be closed after a failed start")
	assert.False(t, w.Status().Running)
}

func TestStopMonitoring_Idempotent(t *testing.T) {
	conn := newFakeConn()
	w := newTestWatcher(t, conn, &fakeFetcher{})

	wallet := solana.NewWallet().PublicKey()
	require.NoError(t, w.StartMonitoring(context.Background(), "ws://localhost", wallet.String(), nil))

	w.StopMonitoring()
	assert.False(t, w.Status().Running)
	assert.True(t, conn.closed.Load())
	assert.True(t, conn.subFor(wallet).unsubbed.Load())

	// Second and third stops are no-ops.
	w.StopMonitoring()
	w.StopMonitoring()
	assert.False(t, w.Status().Running)
}

func TestStartMonitoring_ReplacesRunningSession(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	conns := []*fakeConn{first, second}
	var next atomic.Int64

	logger := zaptest.NewLogger(t)
	cls := classifier.New(classifier.NewMetadataCache(stubAccounts{}, logger), logger)
	dial := func(_ context.Context, _ string) (Conn, error) {
		return conns[next.Add(1)-1], nil
	}
	w := New(dial, &fakeFetcher{}, cls, nil, logger)
	defer w.StopMonitoring()

	wallet := solana.NewWallet().PublicKey()
	require.NoError(t, w.StartMonitoring(context.Background(), "ws://localhost", wallet.String(), nil))
	require.NoError(t, w.StartMonitoring(context.Background(), "ws://localhost", wallet.String(), nil))

	assert.True(t, first.closed.Load(), "previous session transport must be closed")
	assert.False(t, second.closed.Load())
	assert.True(t, w.Status().Running)
}

func TestNotification_EmitsLogEventAndDropsUnfetchable(t *testing.T) {
	conn := newFakeConn()
	fetcher := &fakeFetcher{err: errors.New("transaction not found")}
	w := newTestWatcher(t, conn, fetcher)

	wallet := solana.NewWallet().PublicKey()
	require.NoError(t, w.StartMonitoring(context.Background(), "ws://localhost", wallet.String(), nil))

	result := &ws.LogResult{}
	result.Context.Slot = 42
	result.Value.Signature = solana.Signature{7}
	result.Value.Logs = []string{"Program log: swap"}
	conn.subFor(wallet).results <- result

	select {
	case ev := <-w.LogEvents():
		assert.Equal(t, wallet.String(), ev.WalletAddress)
		assert.Equal(t, uint64(42), ev.Slot)
		assert.Equal(t, solana.Signature{7}.String(), ev.Signature)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a log event")
	}

	require.Eventually(t, func() bool {
		return fetcher.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Stop awaits the in-flight dispatch; the fetch failure stays silent.
	w.StopMonitoring()
	select {
	case ev := <-w.Errors():
		t.Fatalf("unexpected error event: %+v", ev)
	default:
	}
}

func TestReadLoop_ToleratesNilResults(t *testing.T) {
	conn := newFakeConn()
	w := newTestWatcher(t, conn, &fakeFetcher{})
	defer w.StopMonitoring()

	wallet := solana.NewWallet().PublicKey()
	require.NoError(t, w.StartMonitoring(context.Background(), "ws://localhost", wallet.String(), nil))

	// A nil notification must be skipped without killing the loop.
	conn.subFor(wallet).results <- nil

	select {
	case ev := <-w.Errors():
		t.Fatalf("nil results must not produce error events, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, w.Status().Running)
}
