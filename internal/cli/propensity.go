package cli

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/propensity"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/redis"
	"github.com/spf13/cobra"
)

// PropensityResult is printed and recorded by the propensity command.
type PropensityResult struct {
	Mode     string                  `json:"mode"`
	A        float64                 `json:"a"`
	B        float64                 `json:"b"`
	Splits   []string                `json:"splits"`
	Files    []propensity.WeightFile `json:"files"`
	CacheHit bool                    `json:"cacheHit"`
}

func (c *CLI) newPropensityCommand() *cobra.Command {
	var (
		train      string
		test       string
		dir        string
		mode       string
		a, b       float64
		pattern    string
		flushCache bool
	)

	cmd := &cobra.Command{
		Use:   "propensity",
		Short: "Estimate label propensities and write inverse-propensity weight files",
		Example: `  xmc propensity --train train.txt --test test.txt --dir weights
  xmc propensity --train train.txt --mode joint -a 0.6 -b 2.6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.configure(func(cfg *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("mode") {
					cfg.Propensity.Mode = mode
				}
				if flags.Changed("a") {
					cfg.Propensity.A = a
				}
				if flags.Changed("b") {
					cfg.Propensity.B = b
				}
				if flags.Changed("pattern") {
					cfg.Propensity.WeightPattern = pattern
				}
			})
			if err != nil {
				return err
			}
			paths := map[string]string{"train": train}
			names := []string{"train"}
			if test != "" {
				paths["test"] = test
				names = append(names, "test")
			}
			return c.runStage(cmd.Context(), metrics.StagePropensity, func(ctx context.Context, run *stageRun) (any, error) {
				return c.runPropensity(ctx, run, names, paths, dir, flushCache)
			})
		},
	}

	d := config.Default().Propensity
	f := cmd.Flags()
	f.StringVar(&train, "train", "", "Training dataset (its instance count drives individual mode)")
	f.StringVar(&test, "test", "", "Optional test dataset")
	f.StringVar(&dir, "dir", ".", "Directory receiving the weight files")
	f.StringVar(&mode, "mode", d.Mode, "Mode: individual, legacy, joint, frequency or beta")
	f.Float64VarP(&a, "a", "a", d.A, "Jain model parameter A")
	f.Float64VarP(&b, "b", "b", d.B, "Jain model parameter B")
	f.StringVar(&pattern, "pattern", d.WeightPattern, "Weight file name pattern")
	f.BoolVar(&flushCache, "flush-cache", false, "Drop cached propensity vectors before estimating")
	_ = cmd.MarkFlagRequired("train")
	return cmd
}

func (c *CLI) runPropensity(ctx context.Context, run *stageRun, names []string, paths map[string]string, dir string, flushCache bool) (*PropensityResult, error) {
	pc := c.cfg.Propensity
	p := propensity.Params{A: pc.A, B: pc.B}

	var splits []propensity.Split
	err := run.step(ctx, "count-labels", func(ctx context.Context) error {
		for _, name := range names {
			run.event.Input(name, paths[name])
			lc, err := xmcio.CountLabelsFile(paths[name], xmcio.WithIndexBase(c.cfg.Dataset.IndexBase))
			if err != nil {
				return xerrors.WithFile(err, paths[name])
			}
			run.metrics.InstancesProcessed.WithLabelValues(metrics.StagePropensity).Add(float64(lc.Instances))
			run.metrics.UnlabeledInstances.Add(float64(lc.Unlabeled))
			splits = append(splits, propensity.Split{Name: name, Counts: lc})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &PropensityResult{Mode: strings.ToLower(pc.Mode), A: pc.A, B: pc.B, Splits: names}
	var vectors []propensity.Vector
	err = run.step(ctx, "estimate", func(ctx context.Context) error {
		cache, closeCache := c.propensityCache(ctx, run)
		defer closeCache()
		if cache == nil {
			vectors, err = propensity.Estimate(res.Mode, p, splits)
			return err
		}
		if flushCache {
			if err := cache.Invalidate(ctx); err != nil {
				run.logger.Warn("propensity cache not flushed", "error", err)
			}
		}
		vectors, res.CacheHit, err = cache.Estimate(ctx, res.Mode, p, splits)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = run.step(ctx, "write-weights", func(ctx context.Context) error {
		res.Files, err = propensity.WriteWeightFiles(dir, pc.WeightPattern, splits, vectors)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, f := range res.Files {
		run.event.Output(filepath.Clean(f.Path))
	}
	run.logger.Info("propensity weights written",
		"mode", res.Mode,
		"splits", len(splits),
		"files", len(res.Files),
		"cache_hit", res.CacheHit,
	)
	return res, nil
}

// propensityCache connects to Redis when enabled. A connection failure
// disables caching for the run.
func (c *CLI) propensityCache(ctx context.Context, run *stageRun) (*propensity.Cache, func()) {
	if !c.cfg.Redis.Enabled {
		return nil, func() {}
	}
	client, err := pkgredis.NewClient(ctx, c.cfg.Redis)
	if err != nil {
		run.logger.Warn("redis unavailable, computing propensities directly", "error", err)
		return nil, func() {}
	}
	cache := propensity.NewCache(client, c.cfg.Redis.CacheTTL, func(result string) {
		run.metrics.PropensityCache.WithLabelValues(result).Inc()
	})
	return cache, func() { client.Close() }
}
