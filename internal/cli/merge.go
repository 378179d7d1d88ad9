package cli

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/merger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/spf13/cobra"
)

func (c *CLI) newMergeCommand() *cobra.Command {
	var output, ext string

	cmd := &cobra.Command{
		Use:     "merge <dir>",
		Short:   "Merge per-shard top-k prediction files into one",
		Example: `  xmc merge predictions/ --output final_pred.txt`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.configure(func(cfg *config.Config) {
				if cmd.Flags().Changed("output") {
					cfg.Merge.OutputName = output
				}
				if cmd.Flags().Changed("ext") {
					cfg.Merge.Extension = ext
				}
			})
			if err != nil {
				return err
			}
			return c.runStage(cmd.Context(), metrics.StageMerge, func(ctx context.Context, run *stageRun) (any, error) {
				return c.runMerge(ctx, run, args[0])
			})
		},
	}

	d := config.Default().Merge
	cmd.Flags().StringVar(&output, "output", d.OutputName, "Name of the merged file inside <dir>")
	cmd.Flags().StringVar(&ext, "ext", d.Extension, "Extension of shard files")
	return cmd
}

func (c *CLI) runMerge(ctx context.Context, run *stageRun, dir string) (*merger.Result, error) {
	run.event.Input("dir", dir)
	m := merger.New(c.cfg.Merge, c.cfg.Runtime.Workers, c.progress())

	var res *merger.Result
	err := run.step(ctx, "merge-shards", func(ctx context.Context) error {
		var err error
		res, err = m.MergeDir(ctx, dir)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Skipped {
		return res, nil
	}
	run.event.Output(res.Output)
	run.metrics.ShardsMerged.Add(float64(len(res.Shards)))
	run.metrics.InstancesProcessed.WithLabelValues(metrics.StageMerge).Add(float64(res.Instances))
	return res, nil
}
