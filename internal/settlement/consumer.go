package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  MessageReader
	svc     *Service
	backOff func() backoff.BackOff
}

type ConsumerOption func(*Consumer)

// WithRetryBackOff sets the schedule for retrying an event that failed to apply.
func WithRetryBackOff(newBackOff func() backoff.BackOff) ConsumerOption {
	return func(c *Consumer) { c.backOff = newBackOff }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	return b
}

func NewConsumer(brokers []string, topic, groupID string, svc *Service, opts ...ConsumerOption) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}), svc, opts...)
}

func NewConsumerWithReader(r MessageReader, svc *Service, opts ...ConsumerOption) *Consumer {
	c := &Consumer{reader: r, svc: svc, backOff: defaultBackOff}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run consumes until ctx is cancelled. An offset is committed only after its event was handled,
// so a crash replays rather than drops. A failing event is retried in place until it applies,
// since committing a later offset would skip it. Undecodable messages are logged and committed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("fetching settlement event: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("handling settlement event at offset %d: %w", msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Warn("failed to commit settlement offset", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	return backoff.RetryNotify(func() error { return c.handle(ctx, msg) },
		backoff.WithContext(c.backOff(), ctx),
		func(err error, next time.Duration) {
			slog.Error("settlement event not handled, retrying", "offset", msg.Offset, "partition", msg.Partition, "in", next, "error", err)
		})
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		slog.Error("dropping malformed settlement event", "offset", msg.Offset, "error", err)
		return nil
	}

	return c.svc.Handle(ctx, e)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
