// internal/engine/confirm.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/wallet"
)

// Broadcast submission is retried a small fixed number of times; there
// is no wider retry or backoff anywhere else in the pipeline.
const sendAttempts = 3

var ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

// sendAndConfirm deserializes the aggregator-built transaction, signs
// it, broadcasts with bounded retries and waits for confirmed
// commitment before returning the signature.
func (e *Engine) sendAndConfirm(ctx context.Context, rawTx []byte, signer *wallet.Wallet) (solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to deserialize swap transaction: %w", err)
	}

	if err := signer.SignTransaction(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	signature, err := e.sendWithRetry(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := e.awaitConfirmation(ctx, signature); err != nil {
		return solana.Signature{}, err
	}
	return signature, nil
}

func (e *Engine) sendWithRetry(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var signature solana.Signature
	operation := func() error {
		var err error
		signature, err = e.chain.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			e.logger.Warn("Retrying transaction send", zap.Error(err))
			return err
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), sendAttempts-1)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction after %d attempts: %w", sendAttempts, err)
	}
	return signature, nil
}

// awaitConfirmation polls signature statuses until the transaction
// reaches confirmed commitment or the deadline passes.
func (e *Engine) awaitConfirmation(ctx context.Context, signature solana.Signature) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(e.confirmationTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrConfirmationTimeout
		case <-ticker.C:
			response, err := e.chain.GetSignatureStatuses(ctx, false, signature)
			if err != nil {
				e.logger.Warn("Confirmation check failed", zap.Error(err))
				continue
			}
			if len(response.Value) == 0 || response.Value[0] == nil {
				continue
			}

			status := response.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
