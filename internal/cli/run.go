package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/events"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/runstore"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/tracing"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const recordTimeout = 10 * time.Second

// stageRun is the per-invocation context handed to a stage body.
type stageRun struct {
	event   *events.RunEvent
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// step runs fn under a child span named name.
func (r *stageRun) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.SetAttr("error", err.Error())
	}
	return err
}

// runStage wraps a stage body with a run id, a span tree, Prometheus
// collectors and a run record. The body returns the result stored in the
// record; recording failures are logged and never fail the stage.
func (c *CLI) runStage(ctx context.Context, stage string, body func(ctx context.Context, run *stageRun) (any, error)) error {
	id := uuid.NewString()
	ctx = logger.WithRunID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, stage, id)

	reg := prometheus.NewRegistry()
	run := &stageRun{
		event:   events.NewRunEvent(id, stage),
		metrics: metrics.New(reg),
		logger:  logger.FromContext(ctx).With("stage", stage),
	}
	run.logger.Debug("stage started", "workers", c.cfg.Runtime.Workers)

	start := time.Now()
	result, err := body(ctx, run)
	span.End()
	run.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		run.metrics.StageFailures.WithLabelValues(stage, xerrors.Class(err)).Inc()
		span.SetAttr("error", err.Error())
	}

	if ferr := run.event.Finish(result, err); ferr != nil {
		run.logger.Warn("run result not recorded", "error", ferr)
	}
	c.record(context.WithoutCancel(ctx), run)

	if path := c.cfg.Metrics.TextfilePath; path != "" {
		if werr := metrics.WriteTextfile(path, reg); werr != nil {
			run.logger.Warn("metrics textfile not written", "path", path, "error", werr)
		}
	}
	span.Log(run.logger)
	if err != nil {
		return err
	}
	run.logger.Info("stage finished", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// record ships the run event to Kafka when enabled, otherwise straight to
// Postgres when that is enabled.
func (c *CLI) record(ctx context.Context, run *stageRun) {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	switch {
	case c.cfg.Kafka.Enabled:
		pub := events.New(c.cfg.Kafka)
		defer pub.Close()
		if err := pub.Publish(ctx, run.event); err != nil {
			run.logger.Warn("run event not published", "error", err)
		}
	case c.cfg.Postgres.Enabled:
		db, err := postgres.New(ctx, c.cfg.Postgres)
		if err != nil {
			run.logger.Warn("run store unavailable", "error", err)
			return
		}
		defer db.Close()
		store := runstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			run.logger.Warn("run store migration failed", "error", err)
			return
		}
		if _, err := store.Save(ctx, *run.event); err != nil {
			run.logger.Warn("run not saved", "error", err)
		}
	}
}
