package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintechlab/transaction-service/internal/model"
)

// TransactionCreatedEvent notifies the anti-fraud evaluator that a new
// transaction was persisted. Keyed by TransactionExternalID on the wire.
type TransactionCreatedEvent struct {
	TransactionExternalID   string          `json:"transactionExternalId"`
	AccountExternalIDDebit  string          `json:"accountExternalIdDebit"`
	AccountExternalIDCredit string          `json:"accountExternalIdCredit"`
	TransferTypeID          int             `json:"transferTypeId"`
	Value                   decimal.Decimal `json:"value"`
	CreatedAt               string          `json:"createdAt"`
}

// TransactionStatusEvent carries the evaluator's decision back.
type TransactionStatusEvent struct {
	TransactionExternalID string `json:"transactionExternalId"`
	Status                string `json:"status"`
	ProcessedAt           string `json:"processedAt"`
}

type schemaError struct {
	issues []string
}

func (e *schemaError) Error() string {
	return "invalid event payload: " + strings.Join(e.issues, "; ")
}

// ParseTransactionCreatedEvent decodes and validates a transaction-created
// payload. Anything non-conforming is rejected here, before business logic.
func ParseTransactionCreatedEvent(data []byte) (*TransactionCreatedEvent, error) {
	var evt TransactionCreatedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode transaction-created: %w", err)
	}
	var issues []string
	if _, err := uuid.Parse(evt.TransactionExternalID); err != nil {
		issues = append(issues, "transactionExternalId must be a valid UUID")
	}
	if _, err := uuid.Parse(evt.AccountExternalIDDebit); err != nil {
		issues = append(issues, "accountExternalIdDebit must be a valid UUID")
	}
	if _, err := uuid.Parse(evt.AccountExternalIDCredit); err != nil {
		issues = append(issues, "accountExternalIdCredit must be a valid UUID")
	}
	if evt.TransferTypeID <= 0 {
		issues = append(issues, "transferTypeId must be greater than zero")
	}
	if !evt.Value.IsPositive() {
		issues = append(issues, "value must be greater than zero")
	}
	if _, err := time.Parse(time.RFC3339, evt.CreatedAt); err != nil {
		issues = append(issues, "createdAt must be an RFC3339 datetime")
	}
	if len(issues) > 0 {
		return nil, &schemaError{issues: issues}
	}
	return &evt, nil
}

// ParseTransactionStatusEvent decodes and validates a transaction-status
// payload.
func ParseTransactionStatusEvent(data []byte) (*TransactionStatusEvent, error) {
	var evt TransactionStatusEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode transaction-status: %w", err)
	}
	var issues []string
	if _, err := uuid.Parse(evt.TransactionExternalID); err != nil {
		issues = append(issues, "transactionExternalId must be a valid UUID")
	}
	switch evt.Status {
	case model.StatusPending, model.StatusApproved, model.StatusRejected:
	default:
		issues = append(issues, "status must be pending, approved or rejected")
	}
	if _, err := time.Parse(time.RFC3339, evt.ProcessedAt); err != nil {
		issues = append(issues, "processedAt must be an RFC3339 datetime")
	}
	if len(issues) > 0 {
		return nil, &schemaError{issues: issues}
	}
	return &evt, nil
}
