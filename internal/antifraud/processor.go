package antifraud

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fintechlab/transaction-service/internal/event"
)

// StatusPublisher is the slice of the outbound channel the worker needs.
type StatusPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Processor consumes transaction-created events, evaluates them and
// publishes the decision on the status topic.
type Processor struct {
	eval      *Evaluator
	publisher StatusPublisher
	log       *zap.SugaredLogger
}

func NewProcessor(eval *Evaluator, pub StatusPublisher, logger *zap.SugaredLogger) *Processor {
	return &Processor{eval: eval, publisher: pub, log: logger}
}

// HandleMessage validates the payload, judges it and emits the decision.
// Non-conforming payloads are dropped at the boundary; publish failures
// are retried by redelivery so every valid creation gets a decision.
func (p *Processor) HandleMessage(ctx context.Context, msg kafka.Message) event.Outcome {
	evt, err := event.ParseTransactionCreatedEvent(msg.Value)
	if err != nil {
		return event.Dropped(err.Error())
	}
	decision := p.eval.Evaluate(evt)
	if err := p.publisher.Publish(ctx, decision.TransactionExternalID, decision); err != nil {
		return event.Retryable(err)
	}
	p.log.Infow("transaction evaluated",
		"externalId", decision.TransactionExternalID, "status", decision.Status)
	return event.Acked()
}
