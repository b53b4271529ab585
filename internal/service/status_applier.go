package service

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fintechlab/transaction-service/internal/event"
	"github.com/fintechlab/transaction-service/internal/model"
	"github.com/fintechlab/transaction-service/internal/repo"
)

// StatusApplier owns the status write path. It consumes decision events
// and performs a conditional pending-only transition, so redelivered or
// stale decisions are absorbed instead of overwriting a terminal state.
type StatusApplier struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewStatusApplier returns StatusApplier.
func NewStatusApplier(r repo.RepositoryInterface, logger *zap.SugaredLogger) *StatusApplier {
	return &StatusApplier{repo: r, log: logger}
}

// Apply moves the transaction out of pending. It reports whether a row
// actually changed; an unknown target or an already-decided transaction is
// a no-op, not an error.
func (a *StatusApplier) Apply(ctx context.Context, externalID, status string) (bool, error) {
	if status == model.StatusPending {
		// A decision event never moves a transaction back to pending.
		return false, nil
	}
	rows, err := a.repo.MarkStatus(ctx, externalID, status)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		t, err := a.repo.GetByExternalID(ctx, externalID)
		if errors.Is(err, repo.ErrNotFound) {
			a.log.Warnw("transaction not found for status update", "externalId", externalID)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		a.log.Debugw("duplicate decision ignored", "externalId", externalID, "current", t.Status)
		return false, nil
	}

	if t, err := a.repo.GetByExternalID(ctx, externalID); err == nil {
		if err := a.repo.CacheTransaction(ctx, t); err != nil {
			a.log.Warnw("refresh cached transaction", "externalId", externalID, "error", err)
		}
	} else if err := a.repo.InvalidateCachedTransaction(ctx, externalID); err != nil {
		a.log.Warnw("invalidate cached transaction", "externalId", externalID, "error", err)
	}
	return true, nil
}

// HandleMessage adapts Apply to the consumer loop: malformed payloads are
// dropped, store failures are retried by redelivery.
func (a *StatusApplier) HandleMessage(ctx context.Context, msg kafka.Message) event.Outcome {
	evt, err := event.ParseTransactionStatusEvent(msg.Value)
	if err != nil {
		return event.Dropped(err.Error())
	}
	applied, err := a.Apply(ctx, evt.TransactionExternalID, evt.Status)
	if err != nil {
		return event.Retryable(err)
	}
	if applied {
		a.log.Infow("transaction status updated",
			"externalId", evt.TransactionExternalID, "status", evt.Status)
	}
	return event.Acked()
}
