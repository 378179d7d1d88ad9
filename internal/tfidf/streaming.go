package tfidf

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// streamingBackend reads the training file twice, once to fit document
// frequencies and once to transform, holding a single document at a time.
type streamingBackend struct {
	base
}

func (b *streamingBackend) Name() string { return "streaming" }

func (b *streamingBackend) Run(ctx context.Context, job Job) (*Report, error) {
	model, err := b.fit(ctx, job.TrainIn)
	if err != nil {
		return nil, err
	}
	rep := &Report{Backend: b.Name(), Model: model}
	outputs := &xmcio.AtomicSet{}
	defer outputs.Abort()
	rep.Train, err = b.transform(ctx, outputs, model, job.TrainIn, job.TrainOut, false)
	if err != nil {
		return nil, err
	}
	if job.TestIn != "" {
		tr, err := b.transform(ctx, outputs, model, job.TestIn, job.TestOut, true)
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

// FitFile fits document frequencies by streaming the dataset at path.
func FitFile(ctx context.Context, path string, opts ...xmcio.Option) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	rd, err := xmcio.NewReader(f, path, opts...)
	if err != nil {
		return nil, err
	}
	h := rd.Header()
	m := NewModel(h.Instances, h.Features)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inst, err := rd.Next()
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return nil, err
		}
		if err := m.Observe(inst.Features); err != nil {
			if appErr, ok := err.(*xerrors.AppError); ok {
				return nil, appErr.At(path, rd.Line())
			}
			return nil, err
		}
	}
}

func (b *streamingBackend) fit(ctx context.Context, path string) (*Model, error) {
	return FitFile(ctx, path, b.readerOpts()...)
}

func (b *streamingBackend) transform(ctx context.Context, outputs *xmcio.AtomicSet, m *Model, in, out string, clamp bool) (SplitReport, error) {
	f, err := os.Open(in)
	if err != nil {
		return SplitReport{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	rd, err := xmcio.NewReader(f, in, b.readerOpts()...)
	if err != nil {
		return SplitReport{}, err
	}
	sw, err := b.openSplit(outputs, in, out, rd.Header())
	if err != nil {
		return SplitReport{}, err
	}
	bar := b.opts.Progress(rd.Header().Instances, "tf-idf "+in)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			sw.abort()
			return SplitReport{}, err
		}
		inst, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			sw.abort()
			return SplitReport{}, err
		}
		w, z, err := weighAt(m, in, i, inst.Features, clamp)
		if err != nil {
			sw.abort()
			return SplitReport{}, err
		}
		if err := sw.write(i, inst.Labels, w, z); err != nil {
			sw.abort()
			return SplitReport{}, err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
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
