// internal/watcher/watcher.go
package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-copybot/internal/classifier"
	"github.com/rovshanmuradov/solana-copybot/internal/engine"
)

var (
	ErrNoValidWallets  = errors.New("no well-formed wallet addresses")
	ErrNoSubscriptions = errors.New("no wallet subscriptions succeeded")
)

const eventBufferSize = 256

// Watcher owns the monitoring session: it subscribes to wallet logs,
// dispatches notifications to detached units of work and surfaces
// events upward. At most one session is active at a time.
type Watcher struct {
	logger     *zap.Logger
	dial       DialFunc
	fetcher    TransactionFetcher
	classifier *classifier.Classifier
	engine     *engine.Engine

	mu      sync.Mutex
	session *session

	logCh chan LogEvent
	errCh chan ErrorEvent
	resCh chan engine.CopyTradeResult
}

// session is the owned state of one monitoring run. It is replaced
// wholesale on restart, never mutated by a previous run.
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	conn     Conn
	wallets  []string
	subs     map[string]LogSubscription
	tradeCfg *engine.TradeConfig
	wg       sync.WaitGroup
}

func New(dial DialFunc, fetcher TransactionFetcher, cls *classifier.Classifier, eng *engine.Engine, logger *zap.Logger) *Watcher {
	return &Watcher{
		logger:     logger.Named("watcher"),
		dial:       dial,
		fetcher:    fetcher,
		classifier: cls,
		engine:     eng,
		logCh:      make(chan LogEvent, eventBufferSize),
		errCh:      make(chan ErrorEvent, eventBufferSize),
		resCh:      make(chan engine.CopyTradeResult, eventBufferSize),
	}
}

// StartMonitoring opens one log subscription per well-formed address
// in walletsCsv. A running session is fully stopped first. The call
// fails, after cleaning up partial subscriptions, when no address is
// well-formed or no subscription succeeds.
func (w *Watcher) StartMonitoring(ctx context.Context, wsURL, walletsCsv string, tradeCfg *engine.TradeConfig) error {
	w.StopMonitoring()

	wallets := w.parseWallets(walletsCsv)
	if len(wallets) == 0 {
		return ErrNoValidWallets
	}

	conn, err := w.dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("failed to open subscription transport: %w", err)
	}

	// Session lifetime is bound to StopMonitoring, not the caller's
	// context.
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ctx:      sctx,
		cancel:   cancel,
		conn:     conn,
		subs:     make(map[string]LogSubscription),
		tradeCfg: tradeCfg,
	}

	var subsMu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, wlt := range wallets {
		wlt := wlt
		g.Go(func() error {
			sub, subErr := conn.SubscribeWalletLogs(wlt)
			if subErr != nil {
				w.logger.Warn("Failed to subscribe wallet",
					zap.String("wallet", wlt.String()),
					zap.Error(subErr))
				w.emitError(ErrorKindSubscription, subErr.Error(), wlt.String())
				return nil
			}
			subsMu.Lock()
			s.subs[wlt.String()] = sub
			s.wallets = append(s.wallets, wlt.String())
			subsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(s.subs) == 0 {
		cancel()
		conn.Close()
		return ErrNoSubscriptions
	}

	for addr, sub := range s.subs {
		wlt := solana.MustPublicKeyFromBase58(addr)
		go w.readLoop(s, wlt, sub)
	}

	w.mu.Lock()
	w.session = s
	w.mu.Unlock()

	w.logger.Info("Monitoring started",
		zap.Int("wallets", len(s.wallets)),
		zap.Strings("addresses", s.wallets))
	return nil
}

// StopMonitoring tears the session down: future dispatch stops, every
// subscription is unsubscribed best-effort and in-flight units of work
// are awaited. Safe to call repeatedly and when already stopped.
func (w *Watcher) StopMonitoring() {
	w.mu.Lock()
	s := w.session
	w.session = nil
	w.mu.Unlock()

	if s == nil {
		return
	}

	s.cancel()
	for addr, sub := range s.subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Warn("Unsubscribe panicked",
						zap.String("wallet", addr),
						zap.Any("panic", r))
				}
			}()
			sub.Unsubscribe()
		}()
	}
	s.conn.Close()
	s.wg.Wait()

	w.logger.Info("Monitoring stopped", zap.Int("wallets", len(s.wallets)))
}

// Status returns an immutable snapshot of the session.
func (w *Watcher) Status() MonitoringStatus {
	w.mu.Lock()
	s := w.session
	w.mu.Unlock()

	if s == nil {
		return MonitoringStatus{
			Running:          false,
			MonitoredWallets: []string{},
			ConnectionStatus: "disconnected",
			Subscriptions:    []string{},
		}
	}

	wallets := make([]string, len(s.wallets))
	copy(wallets, s.wallets)
	subs := make([]string, 0, len(s.subs))
	for addr := range s.subs {
		subs = append(subs, addr)
	}
	return MonitoringStatus{
		Running:          true,
		MonitoredWallets: wallets,
		ConnectionStatus: "connected",
		Subscriptions:    subs,
	}
}

// parseWallets splits the CSV list, discarding malformed addresses
// without failing the whole call.
func (w *Watcher) parseWallets(walletsCsv string) []solana.PublicKey {
	var wallets []solana.PublicKey
	seen := make(map[solana.PublicKey]bool)
	for _, part := range strings.Split(walletsCsv, ",") {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			w.logger.Warn("Discarding malformed wallet address",
				zap.String("address", addr),
				zap.Error(err))
			w.emitError(ErrorKindValidation, fmt.Sprintf("malformed wallet address: %s", addr), addr)
			continue
		}
		if seen[pk] {
			continue
		}
		seen[pk] = true
		wallets = append(wallets, pk)
	}
	return wallets
}

// readLoop receives notifications for one wallet until the session
// ends. The receive loop itself never blocks on downstream work.
func (w *Watcher) readLoop(s *session, wallet solana.PublicKey, sub LogSubscription) {
	for {
		result, err := sub.Recv(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			w.logger.Error("Subscription receive failed",
				zap.String("wallet", wallet.String()),
				zap.Error(err))
			w.emitError(ErrorKindConnection, err.Error(), wallet.String())
			return
		}
		if result == nil {
			continue
		}
		w.dispatch(s, wallet, result)
	}
}

// dispatch surfaces the raw event and hands the rest of the pipeline
// to a detached, tracked unit of work.
func (w *Watcher) dispatch(s *session, wallet solana.PublicKey, result *ws.LogResult) {
	w.emitLog(LogEvent{
		WalletAddress: wallet.String(),
		Signature:     result.Value.Signature.String(),
		Slot:          result.Context.Slot,
		Err:           result.Value.Err,
		Logs:          result.Value.Logs,
		Timestamp:     time.Now().UTC(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.handleNotification(s, wallet, result)
	}()
}
