// Package queue читает запросы на ревью из Kafka и передает их в review.Submitter
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/jira"
	"github.com/untibullet/service-review/internal/review"
)

// Заголовки сообщения в poison-топике
const (
	HeaderError    = "error"
	HeaderAttempts = "attempts"
	HeaderTopic    = "source-topic"
)

// Reader источник сообщений (kafka.Reader в consumer group)
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer получатель сообщений, которые не удалось обработать
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Submitter обработчик запроса на ревью
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (*review.Outcome, error)
}

type Options struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PoisonTopic string
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader      Reader
	poison      Writer
	submitter   Submitter
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// NewKafkaConsumer создает консьюмер поверх kafka-go. Без poison-топика неудачные сообщения только логируются
func NewKafkaConsumer(opts Options, submitter Submitter, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  opts.Brokers,
		GroupID:  opts.GroupID,
		Topic:    opts.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	var poison Writer
	if opts.PoisonTopic != "" {
		poison = &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.PoisonTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return New(reader, poison, submitter, opts.MaxAttempts, opts.Backoff, logger)
}

// New создает консьюмер с заданными reader и writer
func New(reader Reader, poison Writer, submitter Submitter, maxAttempts int, backoff time.Duration, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		poison:      poison,
		submitter:   submitter,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
	}
}

// Run читает сообщения до отмены контекста. Сообщение коммитится после успешной обработки
// или после записи в poison-топик, поэтому доставка at-least-once
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("review request consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("review request consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	log := c.logger.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))

	attempts, err := c.Handle(ctx, msg.Value)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Error("review request failed", zap.Int("attempts", attempts), zap.Error(err))
	if c.poison == nil {
		return nil
	}
	poisoned := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: HeaderError, Value: []byte(err.Error())},
			{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
			{Key: HeaderTopic, Value: []byte(msg.Topic)},
		},
	}
	if err := c.poison.WriteMessages(ctx, poisoned); err != nil {
		return fmt.Errorf("failed to write poison message: %w", err)
	}
	log.Warn("review request moved to poison topic")
	return nil
}

// Handle обрабатывает одно сообщение с повторами по экспоненте.
// Невалидные запросы и постоянные ошибки Jira не повторяются
func (c *Consumer) Handle(ctx context.Context, raw []byte) (int, error) {
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		_, err := c.submitter.Submit(ctx, raw)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		c.logger.Warn("review request attempt failed", zap.Int("attempt", attempts), zap.Error(err))
		return retry.RetryableError(err)
	})
	return attempts, err
}

// Retryable ошибки, которые имеет смысл повторить
func Retryable(err error) bool {
	if errors.Is(err, review.ErrInvalidRequest) {
		return false
	}
	return !jira.IsPermanent(err)
}

// Close останавливает reader и writer
func (c *Consumer) Close() error {
	errs := []error{c.reader.Close()}
	if c.poison != nil {
		errs = append(errs, c.poison.Close())
	}
	return errors.Join(errs...)
}
