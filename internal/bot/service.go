// internal/bot/service.go
package bot

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/classifier"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
	"github.com/rovshanmuradov/solana-copybot/internal/engine"
	"github.com/rovshanmuradov/solana-copybot/internal/jupiter"
	"github.com/rovshanmuradov/solana-copybot/internal/ledger"
	"github.com/rovshanmuradov/solana-copybot/internal/watcher"
)

// Service wires the pipeline together: one RPC client, one ledger, one
// copy engine and one watcher owning the monitoring session.
type Service struct {
	cfg      *config.Config
	logger   *zap.Logger
	holdings *ledger.Ledger
	watcher  *watcher.Watcher
	tradeCfg *engine.TradeConfig
}

func NewService(cfg *config.Config, logger *zap.Logger) *Service {
	rpcClient := rpc.New(cfg.RPCURL)

	holdings := ledger.New(cfg.LedgerPath, logger)
	holdings.Load()

	meta := classifier.NewMetadataCache(rpcClient, logger)
	cls := classifier.New(meta, logger)

	swapAPI := jupiter.NewClient(cfg.JupiterBaseURL, logger)
	eng := engine.New(swapAPI, rpcClient, holdings, logger)

	return &Service{
		cfg:      cfg,
		logger:   logger.Named("service"),
		holdings: holdings,
		watcher:  watcher.New(watcher.Dial, rpcClient, cls, eng, logger),
		tradeCfg: &engine.TradeConfig{
			PrivateKey:      cfg.PrivateKey,
			BuyAmountSOL:    cfg.BuyAmountSOL,
			SlippagePercent: cfg.SlippagePercent,
		},
	}
}

// Start opens the monitoring session and begins consuming events.
func (s *Service) Start(ctx context.Context) error {
	if err := s.watcher.StartMonitoring(ctx, s.cfg.WSURL, s.cfg.Wallets, s.tradeCfg); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}

	go s.consumeEvents(ctx)

	status := s.watcher.Status()
	s.logger.Info("Copy trading pipeline started",
		zap.Strings("wallets", status.MonitoredWallets),
		zap.Int("tracked_holdings", s.holdings.Count()))
	return nil
}

// Stop tears the monitoring session down.
func (s *Service) Stop() {
	s.watcher.StopMonitoring()
	s.logger.Info("Copy trading pipeline stopped")
}

// Status returns the current monitoring snapshot.
func (s *Service) Status() watcher.MonitoringStatus {
	return s.watcher.Status()
}

// consumeEvents drains the watcher's event streams. Notification
// display is out of scope here; events are logged and the channels
// kept flowing.
func (s *Service) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.watcher.LogEvents():
			s.logger.Debug("Wallet activity",
				zap.String("wallet", event.WalletAddress),
				zap.String("signature", event.Signature),
				zap.Uint64("slot", event.Slot))
		case event := <-s.watcher.Errors():
			s.logger.Warn("Pipeline error",
				zap.String("kind", string(event.Kind)),
				zap.String("message", event.Message),
				zap.String("wallet", event.WalletAddress))
		case result := <-s.watcher.Results():
			if result.Success {
				s.logger.Info("Copy trade result",
					zap.String("kind", string(result.Kind)),
					zap.String("symbol", result.TokenSymbol),
					zap.String("amount", result.Amount.String()),
					zap.String("signature", result.Signature))
			} else {
				s.logger.Warn("Copy trade result",
					zap.String("kind", string(result.Kind)),
					zap.String("symbol", result.TokenSymbol),
					zap.String("error", result.Error))
			}
		}
	}
}
