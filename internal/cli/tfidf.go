package cli

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/tfidf"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/spf13/cobra"
)

func (c *CLI) newTFIDFCommand() *cobra.Command {
	var (
		testIn         string
		testOut        string
		backend        string
		precision      int
		memoryLimitMB  int64
		failOnZeroNorm bool
	)

	cmd := &cobra.Command{
		Use:   "tfidf <train-in> <train-out>",
		Short: "Re-weight dataset features by TF-IDF and L2-normalise each document",
		Example: `  xmc tfidf train.txt train.tfidf.txt
  xmc tfidf train.txt train.tfidf.txt --test-set test.txt --test-out test.tfidf.txt`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.configure(func(cfg *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("backend") {
					cfg.TFIDF.Backend = backend
				}
				if flags.Changed("precision") {
					cfg.TFIDF.Precision = precision
				}
				if flags.Changed("memory-limit") {
					cfg.TFIDF.MemoryLimitMB = memoryLimitMB
				}
				if flags.Changed("fail-on-zero-norm") {
					cfg.TFIDF.FailOnZeroNorm = failOnZeroNorm
				}
			})
			if err != nil {
				return err
			}
			if (testIn == "") != (testOut == "") {
				return xerrors.New(xerrors.ErrConfig, "--test-set and --test-out must be given together")
			}
			job := tfidf.Job{TrainIn: args[0], TrainOut: args[1], TestIn: testIn, TestOut: testOut}
			return c.runStage(cmd.Context(), metrics.StageTFIDF, func(ctx context.Context, run *stageRun) (any, error) {
				return c.runTFIDF(ctx, run, job)
			})
		},
	}

	d := config.Default().TFIDF
	f := cmd.Flags()
	f.StringVar(&testIn, "test-set", "", "Test corpus transformed with the training idf")
	f.StringVar(&testOut, "test-out", "", "Output path for the transformed test corpus")
	f.StringVar(&backend, "backend", d.Backend, "Backend: auto, memory or streaming")
	f.IntVar(&precision, "precision", d.Precision, "Decimals written per feature weight")
	f.Int64Var(&memoryLimitMB, "memory-limit", d.MemoryLimitMB, "Largest estimated corpus size (MB) kept in memory by the auto backend")
	f.BoolVar(&failOnZeroNorm, "fail-on-zero-norm", false, "Fail when a non-empty document loses every feature")
	return cmd
}

func (c *CLI) runTFIDF(ctx context.Context, run *stageRun, job tfidf.Job) (*tfidf.Report, error) {
	run.event.Input("train", job.TrainIn)
	run.event.Input("test", job.TestIn)

	opts := tfidf.Options{
		IndexBase:      c.cfg.Dataset.IndexBase,
		Precision:      c.cfg.TFIDF.Precision,
		Workers:        c.cfg.Runtime.Workers,
		FailOnZeroNorm: c.cfg.TFIDF.FailOnZeroNorm,
		Progress:       c.progress(),
	}
	backend, err := tfidf.Select(c.cfg.TFIDF, job, opts)
	if err != nil {
		return nil, err
	}
	var report *tfidf.Report
	err = run.step(ctx, backend.Name(), func(ctx context.Context) error {
		report, err = backend.Run(ctx, job)
		return err
	})
	if err != nil {
		return nil, err
	}

	run.event.Output(report.Train.Output)
	instances, zeroNorm := report.Train.Instances, report.Train.ZeroNorm
	if report.Test != nil {
		run.event.Output(report.Test.Output)
		instances += report.Test.Instances
		zeroNorm += report.Test.ZeroNorm
	}
	run.metrics.InstancesProcessed.WithLabelValues(metrics.StageTFIDF).Add(float64(instances))
	run.metrics.ZeroNormDocuments.Add(float64(zeroNorm))
	if zeroNorm > 0 {
		run.logger.Warn("documents without surviving features", "count", zeroNorm)
	}
	return report, nil
}
