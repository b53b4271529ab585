package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fintechlab/transaction-service/internal/event"
	"github.com/fintechlab/transaction-service/internal/idempotency"
	"github.com/fintechlab/transaction-service/internal/model"
	"github.com/fintechlab/transaction-service/internal/repo"
)

// ErrPublishFailed marks a creation whose row committed but whose event
// did not go out. The transaction stands; the notification is the gap.
var ErrPublishFailed = errors.New("creation event publish failed")

// EventPublisher is the slice of the outbound channel the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// FieldError names one violated input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violated field of a creation request.
type ValidationError struct {
	Violations []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// CreateInput carries the semantic fields of a creation request.
type CreateInput struct {
	AccountExternalIDDebit  string
	AccountExternalIDCredit string
	TransferTypeID          int
	Amount                  decimal.Decimal
}

func (in CreateInput) validate() error {
	var violations []FieldError
	if _, err := uuid.Parse(in.AccountExternalIDDebit); err != nil {
		violations = append(violations, FieldError{"accountExternalIdDebit", "must be a valid UUID"})
	}
	if _, err := uuid.Parse(in.AccountExternalIDCredit); err != nil {
		violations = append(violations, FieldError{"accountExternalIdCredit", "must be a valid UUID"})
	}
	if in.TransferTypeID <= 0 {
		violations = append(violations, FieldError{"transferTypeId", "must be greater than zero"})
	}
	if !in.Amount.IsPositive() {
		violations = append(violations, FieldError{"value", "must be greater than zero"})
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// TransactionService owns the creation write path and the read queries.
type TransactionService struct {
	repo        repo.RepositoryInterface
	publisher   EventPublisher
	lockTimeout time.Duration
	log         *zap.SugaredLogger
}

// NewTransactionService returns TransactionService.
func NewTransactionService(r repo.RepositoryInterface, pub EventPublisher, lockTimeout time.Duration, logger *zap.SugaredLogger) *TransactionService {
	return &TransactionService{repo: r, publisher: pub, lockTimeout: lockTimeout, log: logger}
}

// Create records a transfer request exactly once. Duplicate submissions,
// sequential or concurrent, all get the originally created transaction.
// The returned flag reports whether this call performed the insert, so the
// transport can distinguish a fresh creation from a dedup hit.
//
// The path is: validate, fingerprint, unlocked dedup read, advisory lock,
// dedup re-read inside the lock, insert, commit, publish. Only the caller
// that actually inserted publishes a transaction-created event.
func (s *TransactionService) Create(ctx context.Context, in CreateInput) (*model.Transaction, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	fp := idempotency.Derive(in.AccountExternalIDDebit, in.AccountExternalIDCredit, in.TransferTypeID, in.Amount)

	// Fast path: a duplicate that already committed costs one read.
	if existing, err := s.repo.FindByFingerprint(ctx, nil, fp); err == nil {
		s.log.Infow("transaction returned from idempotency record", "externalId", existing.ExternalID)
		return existing, false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	var created *model.Transaction
	inserted := false
	err := s.repo.WithFingerprintLock(lockCtx, fp, func(tx *gorm.DB) error {
		// A concurrent duplicate may have committed between the fast-path
		// read and lock acquisition; re-check before inserting. tx carries
		// the lock deadline, so the whole critical section stays bounded.
		existing, err := s.repo.FindByFingerprint(lockCtx, tx, fp)
		if err == nil {
			created = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		t := &model.Transaction{
			ExternalID:              uuid.NewString(),
			AccountExternalIDDebit:  in.AccountExternalIDDebit,
			AccountExternalIDCredit: in.AccountExternalIDCredit,
			TransferTypeID:          in.TransferTypeID,
			Amount:                  in.Amount,
			Status:                  model.StatusPending,
		}
		if err := s.repo.CreateWithFingerprint(tx, t, fp); err != nil {
			return err
		}
		created = t
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.repo.CacheTransaction(ctx, created); err != nil {
		s.log.Warnw("cache transaction", "externalId", created.ExternalID, "error", err)
	}

	if !inserted {
		s.log.Infow("transaction returned from idempotency record", "externalId", created.ExternalID)
		return created, false, nil
	}

	s.log.Infow("transaction persisted", "externalId", created.ExternalID, "fingerprint", fp)

	evt := event.TransactionCreatedEvent{
		TransactionExternalID:   created.ExternalID,
		AccountExternalIDDebit:  created.AccountExternalIDDebit,
		AccountExternalIDCredit: created.AccountExternalIDCredit,
		TransferTypeID:          created.TransferTypeID,
		Value:                   created.Amount,
		CreatedAt:               created.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.publisher.Publish(ctx, created.ExternalID, evt); err != nil {
		// The row is committed; losing the event leaves the transaction
		// pending until an operational replay. Surfaced, not rolled back.
		s.log.Errorw("publish transaction-created", "externalId", created.ExternalID, "error", err)
		return created, true, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return created, true, nil
}

// Get fetches one transaction by external id, read-through the cache.
func (s *TransactionService) Get(ctx context.Context, externalID string) (*model.Transaction, error) {
	if _, err := uuid.Parse(externalID); err != nil {
		return nil, &ValidationError{Violations: []FieldError{
			{"transactionExternalId", "must be a valid UUID"},
		}}
	}
	if t, err := s.repo.GetCachedTransaction(ctx, externalID); err == nil {
		return t, nil
	}
	t, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CacheTransaction(ctx, t); err != nil {
		s.log.Warnw("cache transaction", "externalId", externalID, "error", err)
	}
	return t, nil
}

// List returns the most recent transactions, newest first.
func (s *TransactionService) List(ctx context.Context, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListRecent(ctx, limit)
}
