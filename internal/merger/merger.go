// Package merger combines per-shard top-k prediction files, all covering the
// same instances in the same order, into one global top-k file.
package merger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/progress"
)

// Result describes one merge run.
type Result struct {
	Dir       string   `json:"dir"`
	Output    string   `json:"output"`
	Shards    []string `json:"shards"`
	Instances int      `json:"instances"`
	K         int      `json:"k"`
	Skipped   bool     `json:"skipped"`
}

type Merger struct {
	outputName string
	extension  string
	workers    int
	progress   progress.Factory
	logger     *slog.Logger
}

func New(cfg config.MergeConfig, workers int, prog progress.Factory) *Merger {
	if workers < 1 {
		workers = 1
	}
	if prog == nil {
		prog = progress.Silent
	}
	return &Merger{
		outputName: cfg.OutputName,
		extension:  cfg.Extension,
		workers:    workers,
		progress:   prog,
		logger:     logger.WithComponent("merger"),
	}
}

// Shards lists the prediction files of dir in name order.
func (m *Merger) Shards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing shards: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), m.extension) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// MergeDir merges every shard file in dir into dir/<outputName>. When that
// file already exists among the shards the run is skipped.
func (m *Merger) MergeDir(ctx context.Context, dir string) (*Result, error) {
	names, err := m.Shards(dir)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, m.outputName)
	res := &Result{Dir: dir, Output: out}
	for _, n := range names {
		if n == m.outputName {
			m.logger.Info("predictions already merged", "output", out)
			res.Skipped = true
			return res, nil
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no *%s prediction files in %s", m.extension, dir)
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}

	merged, err := m.Merge(ctx, paths)
	if err != nil {
		return nil, err
	}
	err = xmcio.WriteFileAtomic(out, func(w io.Writer) error {
		return xmcio.WritePredictions(w, merged)
	})
	if err != nil {
		return nil, err
	}
	res.Shards = names
	res.Instances = merged.Header.Instances
	res.K = merged.Header.K
	m.logger.Info("merged predictions",
		"output", out,
		"shards", len(names),
		"instances", res.Instances,
		"k", res.K,
	)
	return res, nil
}

// Merge folds the shard files in the given order. Shards are parsed
// concurrently in windows of the worker count; folding stays sequential.
func (m *Merger) Merge(ctx context.Context, paths []string) (*xmcio.Predictions, error) {
	var running *xmcio.Predictions
	bar := m.progress(len(paths), "merging shards")
	for start := 0; start < len(paths); start += m.workers {
		end := min(start+m.workers, len(paths))
		window := paths[start:end]
		parsed := make([]*xmcio.Predictions, len(window))

		g, gctx := errgroup.WithContext(ctx)
		for i, p := range window {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pred, err := xmcio.ReadPredictionsFile(p)
				if err != nil {
					return err
				}
				parsed[i] = pred
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, shard := range parsed {
			if running == nil {
				running = shard
				running.Records = Fold(shard.Records, make([][]xmcio.Prediction, len(shard.Records)), shard.Header.K)
				_ = bar.Add(1)
				continue
			}
			if shard.Header != running.Header {
				return nil, xerrors.Newf(xerrors.ErrConsistency,
					"header %q does not match first shard %q (%s)", shard.Header, running.Header, paths[0]).At(window[i], 1)
			}
			running.Records = Fold(running.Records, shard.Records, running.Header.K)
			_ = bar.Add(1)
		}
	}
	_ = bar.Finish()
	if running == nil {
		return nil, fmt.Errorf("no shards to merge")
	}
	return running, nil
}
