package antifraud

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintechlab/transaction-service/internal/event"
	"github.com/fintechlab/transaction-service/internal/model"
)

// Evaluator applies the risk rule: amounts strictly above the threshold
// are rejected, everything else is approved. Deterministic on the amount.
type Evaluator struct {
	threshold decimal.Decimal
}

func NewEvaluator(threshold decimal.Decimal) *Evaluator {
	return &Evaluator{threshold: threshold}
}

// Evaluate judges a created transaction and produces its decision event.
func (e *Evaluator) Evaluate(evt *event.TransactionCreatedEvent) event.TransactionStatusEvent {
	status := model.StatusApproved
	if evt.Value.GreaterThan(e.threshold) {
		status = model.StatusRejected
	}
	return event.TransactionStatusEvent{
		TransactionExternalID: evt.TransactionExternalID,
		Status:                status,
		ProcessedAt:           time.Now().UTC().Format(time.RFC3339),
	}
}
