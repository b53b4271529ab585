package antifraud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fintechlab/transaction-service/internal/event"
	"github.com/fintechlab/transaction-service/internal/logger"
	"github.com/fintechlab/transaction-service/internal/model"
)

func createdEvent(value string) *event.TransactionCreatedEvent {
	return &event.TransactionCreatedEvent{
		TransactionExternalID:   "0f8fad5b-d9cb-469f-a165-70867728950e",
		AccountExternalIDDebit:  "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		AccountExternalIDCredit: "550e8400-e29b-41d4-a716-446655440000",
		TransferTypeID:          1,
		Value:                   decimal.RequireFromString(value),
		CreatedAt:               time.Now().UTC().Format(time.RFC3339),
	}
}

func TestEvaluate_ThresholdRule(t *testing.T) {
	eval := NewEvaluator(decimal.NewFromInt(1000))

	cases := []struct {
		value string
		want  string
	}{
		{"999.99", model.StatusApproved},
		{"1000", model.StatusApproved}, // boundary: not strictly greater
		{"1000.01", model.StatusRejected},
		{"5000", model.StatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			decision := eval.Evaluate(createdEvent(tc.value))
			assert.Equal(t, tc.want, decision.Status)
			assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", decision.TransactionExternalID)
			_, err := time.Parse(time.RFC3339, decision.ProcessedAt)
			assert.NoError(t, err)
		})
	}
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []event.TransactionStatusEvent
	err  error
}

func (p *capturePublisher) Publish(ctx context.Context, key string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, payload.(event.TransactionStatusEvent))
	return nil
}

func newProcessor(t *testing.T, pub *capturePublisher) *Processor {
	log, err := logger.NewLogger("test", "error")
	assert.NoError(t, err)
	return NewProcessor(NewEvaluator(decimal.NewFromInt(1000)), pub, log)
}

func TestHandleMessage_PublishesDecision(t *testing.T) {
	pub := &capturePublisher{}
	p := newProcessor(t, pub)

	payload := fmt.Sprintf(`{
		"transactionExternalId": "0f8fad5b-d9cb-469f-a165-70867728950e",
		"accountExternalIdDebit": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"accountExternalIdCredit": "550e8400-e29b-41d4-a716-446655440000",
		"transferTypeId": 1,
		"value": 2000,
		"createdAt": %q
	}`, time.Now().UTC().Format(time.RFC3339))

	out := p.HandleMessage(context.Background(), kafka.Message{Value: []byte(payload)})
	assert.Equal(t, event.Ack, out.Disposition)
	assert.Len(t, pub.msgs, 1)
	assert.Equal(t, model.StatusRejected, pub.msgs[0].Status)
}

func TestHandleMessage_MalformedPayloadIsDropped(t *testing.T) {
	pub := &capturePublisher{}
	p := newProcessor(t, pub)

	out := p.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"value":"x"}`)})
	assert.Equal(t, event.Drop, out.Disposition)
	assert.Empty(t, pub.msgs)
}

func TestHandleMessage_PublishFailureIsRetryable(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	p := newProcessor(t, pub)

	payload := fmt.Sprintf(`{
		"transactionExternalId": "0f8fad5b-d9cb-469f-a165-70867728950e",
		"accountExternalIdDebit": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"accountExternalIdCredit": "550e8400-e29b-41d4-a716-446655440000",
		"transferTypeId": 1,
		"value": 10,
		"createdAt": %q
	}`, time.Now().UTC().Format(time.RFC3339))

	out := p.HandleMessage(context.Background(), kafka.Message{Value: []byte(payload)})
	assert.Equal(t, event.Retry, out.Disposition)
	assert.Error(t, out.Err)
}
