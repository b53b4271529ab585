package event

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message and reports what to do with it.
type HandlerFunc func(ctx context.Context, msg kafka.Message) Outcome

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// Consumer runs a kafka.Reader in a consumer group and feeds messages to a
// handler. Ack and Drop commit the offset; Retry re-runs the same message
// with capped backoff, so a failing message is never skipped silently and a
// bad one never kills the loop.
type Consumer struct {
	reader  *kafka.Reader
	handler HandlerFunc
	log     *zap.SugaredLogger
}

// NewConsumer constructs a group consumer for one topic.
func NewConsumer(brokers []string, groupID, topic string, handler HandlerFunc, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		handler: handler,
		log:     logger,
	}
}

// Run blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := c.handle(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	for attempt := 0; ; attempt++ {
		out := c.handler(ctx, msg)
		switch out.Disposition {
		case Ack:
			return c.reader.CommitMessages(ctx, msg)
		case Drop:
			c.log.Warnw("dropping message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
				"reason", out.Reason)
			return c.reader.CommitMessages(ctx, msg)
		case Retry:
			delay := backoff(attempt)
			c.log.Errorw("handler failed, retrying",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
				"attempt", attempt+1, "delay", delay, "error", out.Err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

func backoff(attempt int) time.Duration {
	if attempt > 5 {
		return retryMaxDelay
	}
	d := retryBaseDelay << attempt
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

// Close releases the reader and its group membership.
func (c *Consumer) Close() error { return c.reader.Close() }
