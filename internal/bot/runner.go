// internal/bot/runner.go
package bot

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/config"
)

// Runner manages process lifecycle around the service.
type Runner struct {
	logger     *zap.Logger
	service    *Service
	shutdownCh chan os.Signal
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger,
		service:    NewService(cfg, logger),
		shutdownCh: make(chan os.Signal, 1),
	}
}

// Run starts the pipeline and blocks until a signal or context
// cancellation, then stops the session gracefully.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.service.Start(runCtx); err != nil {
		return err
	}

	select {
	case sig := <-r.shutdownCh:
		r.logger.Info("Signal received: " + sig.String())
	case <-ctx.Done():
	}

	cancel()
	r.service.Stop()
	return nil
}
