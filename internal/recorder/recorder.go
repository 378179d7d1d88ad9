// Package recorder consumes run events from Kafka, persists them through the
// run store and serves them over HTTP.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/events"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/resilience"
)

// Store is the subset of *runstore.Store the recorder needs.
type Store interface {
	Save(ctx context.Context, ev events.RunEvent) (bool, error)
	Get(ctx context.Context, id string) (*events.RunEvent, error)
	List(ctx context.Context, f runstore.Filter) ([]events.RunEvent, error)
	Summary(ctx context.Context) ([]runstore.StageSummary, error)
}

type Recorder struct {
	store   Store
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Store, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store: store,
		breaker: resilience.NewCircuitBreaker("runstore", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     15 * time.Second,
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     15 * time.Second,
		},
		metrics: m,
		logger:  slog.Default().With("component", "recorder"),
	}
}

// HandleMessage stores one run event. Undecodable messages are dropped so
// they do not block the partition. A store failure is retried until it
// succeeds or ctx ends, since committing a later offset would skip this
// message for good; only then is the error returned.
func (r *Recorder) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	ev, err := events.Decode(value)
	if err != nil {
		r.logger.Warn("dropping malformed run event", "key", string(key), "error", err)
		return nil
	}
	var inserted bool
	save := func() error {
		return r.breaker.Execute(func() error {
			var saveErr error
			inserted, saveErr = r.store.Save(ctx, ev)
			return saveErr
		})
	}
	for {
		err = resilience.Retry(ctx, "record run", r.retry, save)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("recording run %s: %w", ev.ID, err)
		}
		r.logger.Warn("run store unavailable, holding event", "run_id", ev.ID, "error", err)
	}
	if inserted {
		r.metrics.RunsRecorded.WithLabelValues(ev.Stage).Inc()
		r.logger.Info("run recorded",
			"run_id", ev.ID,
			"stage", ev.Stage,
			"status", ev.Status,
			"duration_ms", ev.DurationMs,
		)
	}
	return nil
}

// Handler adapts HandleMessage to the consumer callback.
func (r *Recorder) Handler() kafka.MessageHandler {
	return r.HandleMessage
}

// BreakerCheck reports the store circuit as a health component.
func (r *Recorder) BreakerCheck() health.Check {
	return func(context.Context) health.ComponentHealth {
		state := r.breaker.State()
		if state == resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusUp, Message: state.String()}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "store circuit " + state.String()}
	}
}
