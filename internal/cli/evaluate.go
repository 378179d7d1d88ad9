package cli

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/evaluate"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var (
		predPath    string
		dataPath    string
		weightsPath string
		ranks       []int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score predictions with P@k and nDCG@k, plus PSP@k and PSnDCG@k given weights",
		Example: `  xmc evaluate --pred final_pred.txt --data test.txt
  xmc evaluate --pred final_pred.txt --data test.txt --weights weights-test-pos.txt --ranks 1,3,5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.configure(func(cfg *config.Config) {
				if cmd.Flags().Changed("ranks") {
					cfg.Evaluate.Ranks = ranks
				}
			})
			if err != nil {
				return err
			}
			return c.runStage(cmd.Context(), metrics.StageEvaluate, func(ctx context.Context, run *stageRun) (any, error) {
				res, err := c.runEvaluate(ctx, run, predPath, dataPath, weightsPath)
				if err != nil {
					return nil, err
				}
				fmt.Fprint(c.stdout, evaluate.Format(res, c.cfg.Evaluate.Ranks))
				return res, nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&predPath, "pred", "", "Prediction file")
	f.StringVar(&dataPath, "data", "", "Ground-truth dataset")
	f.StringVar(&weightsPath, "weights", "", "Inverse-propensity weight file enabling PSP@k and PSnDCG@k")
	f.IntSliceVar(&ranks, "ranks", config.Default().Evaluate.Ranks, "Cut-offs to report")
	_ = cmd.MarkFlagRequired("pred")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (c *CLI) runEvaluate(ctx context.Context, run *stageRun, predPath, dataPath, weightsPath string) (*evaluate.Result, error) {
	run.event.Input("pred", predPath)
	run.event.Input("data", dataPath)
	run.event.Input("weights", weightsPath)
	base := xmcio.WithIndexBase(c.cfg.Dataset.IndexBase)

	var in evaluate.Input
	err := run.step(ctx, "load", func(ctx context.Context) error {
		var err error
		if in.Truth, err = evaluate.LoadTruthFile(dataPath, base); err != nil {
			return err
		}
		if in.Predictions, err = xmcio.ReadPredictionsFile(predPath, base); err != nil {
			return err
		}
		if weightsPath != "" {
			in.InvPropensity, err = evaluate.LoadInverseWeights(weightsPath)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var res *evaluate.Result
	err = run.step(ctx, "score", func(ctx context.Context) error {
		var err error
		res, err = evaluate.New(c.cfg.Runtime.Workers, c.progress()).Run(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.metrics.InstancesProcessed.WithLabelValues(metrics.StageEvaluate).Add(float64(res.Instances))
	run.metrics.UnlabeledInstances.Add(float64(res.Unlabeled))
	return res, nil
}
