package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/platform/config"
)

const defaultRetryDelay = time.Second

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dispatcher interface {
	Dispatch(ctx context.Context, req notify.Request) (*notify.Result, error)
}

// ConsumerConfig controls fetch retry pacing.
type ConsumerConfig struct {
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Consumer feeds lifecycle events to the dispatcher. Messages are committed
// once dispatched or found unprocessable. A dispatch cut short by shutdown
// is left uncommitted so the group redelivers it.
type Consumer struct {
	reader     Reader
	dispatcher dispatcher
	cfg        ConsumerConfig
}

// NewReader creates a consumer-group reader for the lifecycle topic.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			slog.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	})
}

// NewConsumer creates a consumer.
func NewConsumer(reader Reader, d dispatcher, cfg ConsumerConfig) *Consumer {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consumer{reader: reader, dispatcher: d, cfg: cfg}
}

// Run consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.cfg.Logger.Error("closing kafka reader", "error", err)
		}
	}()

	c.cfg.Logger.Info("lifecycle consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.cfg.Logger.Info("lifecycle consumer stopped")
				return nil
			}
			c.cfg.Logger.Error("fetching lifecycle event", "error", err)
			if !sleep(ctx, c.cfg.RetryDelay) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, m) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.cfg.Logger.Error("committing lifecycle event",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		}
	}
}

// handle dispatches one message. It returns false only when ctx ended
// before the message was handled, in which case it must not be committed.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	log := c.cfg.Logger.With("partition", m.Partition, "offset", m.Offset)

	req, err := Decode(m)
	if err != nil {
		log.Error("dropping unreadable lifecycle event", "error", err)
		return true
	}

	res, err := c.dispatcher.Dispatch(ctx, req)
	switch {
	case err == nil:
		if !res.Success {
			log.Warn("lifecycle notification partially delivered", "type", req.Type, "recipient_id", req.RecipientID)
		}
		return true
	case errors.Is(err, notify.ErrDispatchInterrupted) || ctx.Err() != nil:
		log.Info("lifecycle dispatch interrupted, leaving uncommitted", "type", req.Type)
		return false
	case permanent(err):
		log.Error("dropping invalid lifecycle event", "type", req.Type, "error", err)
		return true
	default:
		log.Error("dropping lifecycle event after dispatch error", "type", req.Type, "error", err)
		return true
	}
}

func permanent(err error) bool {
	return errors.Is(err, notify.ErrUnknownEventType) ||
		errors.Is(err, notify.ErrRecipientMissing) ||
		errors.Is(err, notify.ErrUnknownChannel)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
