package cli

import (
	"context"
	"io"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/labelstats"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/spf13/cobra"
)

func (c *CLI) newLabelStatsCommand() *cobra.Command {
	var (
		samples int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "labelstats <dataset> [target]",
		Short: "Write label frequency, imbalance, coverage and tail statistics as JSON",
		Example: `  xmc labelstats train.txt
  xmc labelstats train.txt stats.json --samples 50000 --seed 7`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.configure(nil); err != nil {
				return err
			}
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			return c.runStage(cmd.Context(), metrics.StageLabelStats, func(ctx context.Context, run *stageRun) (any, error) {
				return c.runLabelStats(ctx, run, args[0], target, samples, seed)
			})
		},
	}

	cmd.Flags().IntVar(&samples, "samples", labelstats.DefaultSamples, "Random quadruples drawn for the obesity index")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Seed of the obesity sampler")
	return cmd
}

// runLabelStats writes to target, or to stdout when target is empty.
func (c *CLI) runLabelStats(ctx context.Context, run *stageRun, dataset, target string, samples int, seed int64) (*labelstats.Stats, error) {
	run.event.Input("dataset", dataset)

	var lc xmcio.LabelCounts
	err := run.step(ctx, "count-labels", func(ctx context.Context) error {
		var err error
		lc, err = xmcio.CountLabelsFile(dataset, xmcio.WithIndexBase(c.cfg.Dataset.IndexBase))
		return err
	})
	if err != nil {
		return nil, err
	}
	run.metrics.InstancesProcessed.WithLabelValues(metrics.StageLabelStats).Add(float64(lc.Instances))
	run.metrics.UnlabeledInstances.Add(float64(lc.Unlabeled))

	stats := labelstats.Compute(lc, samples, seed)
	if target == "" {
		return stats, labelstats.WriteJSON(c.stdout, stats)
	}
	err = xmcio.WriteFileAtomic(target, func(w io.Writer) error {
		return labelstats.WriteJSON(w, stats)
	})
	if err != nil {
		return nil, err
	}
	run.event.Output(target)
	return stats, nil
}
