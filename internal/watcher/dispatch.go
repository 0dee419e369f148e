// internal/watcher/dispatch.go
package watcher

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var maxTxVersion uint64 = 0

// handleNotification runs the fetch / classify / execute chain for one
// notification, detached from the subscription callback. Errors here
// go to the error funnel and never touch the transport.
func (w *Watcher) handleNotification(s *session, wallet solana.PublicKey, result *ws.LogResult) {
	signature := result.Value.Signature
	log := w.logger.With(
		zap.String("dispatch_id", uuid.NewString()[:8]),
		zap.String("wallet", wallet.String()),
		zap.String("signature", signature.String()))

	txRes, err := w.fetcher.GetTransaction(s.ctx, signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if err != nil || txRes == nil {
		// Indexing lag: the node has announced the signature but cannot
		// serve the transaction yet. Dropped silently.
		log.Debug("Transaction not yet fetchable, dropping event", zap.Error(err))
		return
	}
	if txRes.Transaction == nil || txRes.Meta == nil {
		log.Debug("Transaction missing payload or meta, dropping event")
		return
	}

	tx, err := txRes.Transaction.GetTransaction()
	if err != nil {
		log.Warn("Failed to decode transaction", zap.Error(err))
		w.emitError(ErrorKindUnknown, "failed to decode transaction: "+err.Error(), wallet.String())
		return
	}

	analysis := w.classifier.AnalyzeTransaction(s.ctx, tx, txRes.Meta, wallet, signature.String())
	if !analysis.IsDexTransaction {
		log.Debug("Not a DEX transaction")
		return
	}
	if analysis.Trade == nil {
		log.Debug("DEX transaction without a classifiable trade")
		return
	}

	if w.engine == nil || s.tradeCfg == nil {
		log.Info("Trade detected but copy trading is not configured",
			zap.String("kind", string(analysis.Trade.Kind)),
			zap.String("mint", analysis.Trade.Token.Mint))
		return
	}

	tradeResult := w.engine.ProcessCopyTrade(s.ctx, analysis.Trade, s.tradeCfg)
	w.emitResult(tradeResult)

	if tradeResult.Success {
		log.Info("Copy trade executed",
			zap.String("kind", string(tradeResult.Kind)),
			zap.String("mint", tradeResult.TokenMint),
			zap.String("copy_signature", tradeResult.Signature))
	} else {
		log.Warn("Copy trade failed",
			zap.String("kind", string(tradeResult.Kind)),
			zap.String("mint", tradeResult.TokenMint),
			zap.String("error", tradeResult.Error))
	}
}
