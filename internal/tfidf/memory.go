package tfidf

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// memoryBackend loads each corpus whole and weighs contiguous instance ranges
// on a bounded worker group.
type memoryBackend struct {
	base
}

func (b *memoryBackend) Name() string { return "memory" }

func (b *memoryBackend) Run(ctx context.Context, job Job) (*Report, error) {
	train, err := xmcio.ReadCorpusFile(job.TrainIn, b.readerOpts()...)
	if err != nil {
		return nil, err
	}
	model, err := FitCorpus(ctx, train, b.opts.Workers)
	if err != nil {
		return nil, xerrors.WithFile(err, job.TrainIn)
	}
	rep := &Report{Backend: b.Name(), Model: model}
	outputs := &xmcio.AtomicSet{}
	defer outputs.Abort()
	rep.Train, err = b.transform(ctx, outputs, model, train, job.TrainIn, job.TrainOut, false)
	if err != nil {
		return nil, err
	}

	if job.TestIn != "" {
		test, err := xmcio.ReadCorpusFile(job.TestIn, b.readerOpts()...)
		if err != nil {
			return nil, err
		}
		tr, err := b.transform(ctx, outputs, model, test, job.TestIn, job.TestOut, true)
		if err != nil {
			return nil, err
		}
		rep.Test = &tr
	}
	if err := outputs.Commit(); err != nil {
		return nil, err
	}
	return rep, nil
}

// FitCorpus counts document frequencies over c using workers goroutines.
func FitCorpus(ctx context.Context, c *xmcio.Corpus, workers int) (*Model, error) {
	parts, err := parallel.MapRanges(ctx, len(c.Instances), workers, func(ctx context.Context, r parallel.Range) (*Model, error) {
		m := NewModel(c.Header.Instances, c.Header.Features)
		for i := r.Lo; i < r.Hi; i++ {
			if err := m.Observe(c.Instances[i].Features); err != nil {
				return nil, err
			}
		}
		return m, ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	model := parallel.TreeReduce(parts, func(a, b *Model) *Model { return a.Merge(b) })
	if model == nil {
		model = NewModel(c.Header.Instances, c.Header.Features)
	}
	return model, nil
}

func (b *memoryBackend) transform(ctx context.Context, outputs *xmcio.AtomicSet, m *Model, c *xmcio.Corpus, in, out string, clamp bool) (SplitReport, error) {
	n := len(c.Instances)
	weighted := make([][]xmcio.Feature, n)
	zero := make([]bool, n)
	bar := b.opts.Progress(n, "tf-idf "+in)

	_, err := parallel.MapRanges(ctx, n, b.opts.Workers, func(ctx context.Context, r parallel.Range) (struct{}, error) {
		for i := r.Lo; i < r.Hi; i++ {
			if err := ctx.Err(); err != nil {
				return struct{}{}, err
			}
			w, z, err := weighAt(m, in, i, c.Instances[i].Features, clamp)
			if err != nil {
				return struct{}{}, err
			}
			weighted[i], zero[i] = w, z
		}
		_ = bar.Add(r.Len())
		return struct{}{}, nil
	})
	if err != nil {
		return SplitReport{}, err
	}
	_ = bar.Finish()

	sw, err := b.openSplit(outputs, in, out, c.Header)
	if err != nil {
		return SplitReport{}, err
	}
	for i := range c.Instances {
		if err := sw.write(i, c.Instances[i].Labels, weighted[i], zero[i]); err != nil {
			sw.abort()
			return SplitReport{}, err
		}
	}
	rep, err := sw.finish()
	if err != nil {
		return SplitReport{}, err
	}
	b.logger.Info("transformed corpus",
		"backend", b.Name(),
		"input", in,
		"output", out,
		"instances", rep.Instances,
		"zero_norm", rep.ZeroNorm,
	)
	return rep, nil
}
