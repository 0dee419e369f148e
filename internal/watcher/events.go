// internal/watcher/events.go
package watcher

import (
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/engine"
)

// LogEvent is one raw log notification, produced per subscription
// message and surfaced unchanged.
type LogEvent struct {
	WalletAddress string
	Signature     string
	Slot          uint64
	Err           interface{}
	Logs          []string
	Timestamp     time.Time
}

// ErrorKind buckets pipeline errors for consumers.
type ErrorKind string

const (
	ErrorKindConnection   ErrorKind = "connection"
	ErrorKindSubscription ErrorKind = "subscription"
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindUnknown      ErrorKind = "unknown"
)

// ErrorEvent is a non-fatal pipeline error surfaced upward. Errors
// here never abort the subscription transport.
type ErrorEvent struct {
	Kind          ErrorKind
	Message       string
	WalletAddress string
	Timestamp     time.Time
}

// MonitoringStatus is an immutable snapshot of the active session.
type MonitoringStatus struct {
	Running          bool
	MonitoredWallets []string
	ConnectionStatus string
	Subscriptions    []string
}

// LogEvents returns the raw notification stream.
func (w *Watcher) LogEvents() <-chan LogEvent { return w.logCh }

// Errors returns the funnel for per-event errors.
func (w *Watcher) Errors() <-chan ErrorEvent { return w.errCh }

// Results returns the stream of copy-trade outcomes.
func (w *Watcher) Results() <-chan engine.CopyTradeResult { return w.resCh }

// Channel sends never block the producing goroutine: a full consumer
// drops the event with a warning.
func (w *Watcher) emitLog(event LogEvent) {
	select {
	case w.logCh <- event:
	default:
		w.logger.Warn("Log event channel full, dropping event",
			zap.String("wallet", event.WalletAddress),
			zap.String("signature", event.Signature))
	}
}

func (w *Watcher) emitError(kind ErrorKind, message, walletAddress string) {
	event := ErrorEvent{
		Kind:          kind,
		Message:       message,
		WalletAddress: walletAddress,
		Timestamp:     time.Now().UTC(),
	}
	select {
	case w.errCh <- event:
	default:
		w.logger.Warn("Error event channel full, dropping event",
			zap.String("kind", string(kind)),
			zap.String("message", message))
	}
}

func (w *Watcher) emitResult(result engine.CopyTradeResult) {
	select {
	case w.resCh <- result:
	default:
		w.logger.Warn("Result channel full, dropping result",
			zap.String("mint", result.TokenMint),
			zap.Bool("success", result.Success))
	}
}
