package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/resilience"
)

type Publisher interface {
	Publish(ctx context.Context, event *RunEvent) error
	Close() error
}

// New returns a Kafka publisher when cfg.Enabled, otherwise a no-op.
func New(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled {
		return Noop{}
	}
	return newKafkaPublisher(kafka.NewProducer(cfg, cfg.RunsTopic), cfg.PublishTimeout)
}

type Noop struct{}

func (Noop) Publish(context.Context, *RunEvent) error { return nil }
func (Noop) Close() error                             { return nil }

type sender interface {
	Publish(ctx context.Context, event kafka.Event) error
	Close() error
}

type kafkaPublisher struct {
	sender  sender
	timeout time.Duration
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func newKafkaPublisher(s sender, timeout time.Duration) *kafkaPublisher {
	return &kafkaPublisher{
		sender:  s,
		timeout: timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		logger: slog.Default().With("component", "run-events"),
	}
}

// Publish sends event keyed by its run id, retrying transient failures.
// Every attempt is bounded by the configured publish timeout.
func (p *kafkaPublisher) Publish(ctx context.Context, event *RunEvent) error {
	msg := kafka.Event{Key: event.ID, Value: event}
	err := resilience.Retry(ctx, "publish run event", p.retry, func() error {
		return resilience.WithTimeout(ctx, p.timeout, "publish run event", func(ctx context.Context) error {
			return p.sender.Publish(ctx, msg)
		})
	})
	if err != nil {
		return err
	}
	p.logger.Debug("run event published", "run_id", event.ID, "stage", event.Stage, "status", event.Status)
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.sender.Close()
}
