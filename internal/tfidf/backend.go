package tfidf

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/progress"
)

// memoryExpansion estimates in-memory corpus size relative to its text size.
const memoryExpansion = 3

// Job names the files of one run. Test is optional and is transformed with
// the idf fitted on Train.
type Job struct {
	TrainIn  string
	TrainOut string
	TestIn   string
	TestOut  string
}

type Options struct {
	IndexBase      int
	Precision      int
	Workers        int
	FailOnZeroNorm bool
	Progress       progress.Factory
}

// SplitReport summarises one transformed file.
type SplitReport struct {
	Input     string `json:"input"`
	Output    string `json:"output"`
	Instances int    `json:"instances"`
	ZeroNorm  int    `json:"zeroNorm"`
}

type Report struct {
	Backend string       `json:"backend"`
	Train   SplitReport  `json:"train"`
	Test    *SplitReport `json:"test,omitempty"`
	Model   *Model       `json:"-"`
}

// Backend runs a TF-IDF job. Implementations differ only in memory use.
type Backend interface {
	Name() string
	Run(ctx context.Context, job Job) (*Report, error)
}

// New returns the backend with the given name.
func New(name string, opts Options) (Backend, error) {
	if opts.Progress == nil {
		opts.Progress = progress.Silent
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	base := base{opts: opts, logger: logger.WithComponent("tfidf")}
	switch name {
	case config.BackendMemory:
		return &memoryBackend{base: base}, nil
	case config.BackendStreaming:
		return &streamingBackend{base: base}, nil
	}
	return nil, xerrors.Newf(xerrors.ErrConfig, "unknown tfidf backend %q", name)
}

// Select resolves the "auto" backend by comparing the estimated in-memory
// size of the job's inputs with the configured limit.
func Select(cfg config.TFIDFConfig, job Job, opts Options) (Backend, error) {
	name := cfg.Backend
	if name == config.BackendAuto {
		size, err := inputSize(job)
		if err != nil {
			return nil, err
		}
		limit := cfg.MemoryLimitMB << 20
		name = config.BackendStreaming
		if size*memoryExpansion <= limit {
			name = config.BackendMemory
		}
		logger.WithComponent("tfidf").Info("selected backend",
			"backend", name,
			"input_bytes", size,
			"limit_bytes", limit,
		)
	}
	return New(name, opts)
}

func inputSize(job Job) (int64, error) {
	var total int64
	for _, p := range []string{job.TrainIn, job.TestIn} {
		if p == "" {
			continue
		}
		st, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("probing input size: %w", err)
		}
		total += st.Size()
	}
	return total, nil
}

type base struct {
	opts   Options
	logger *slog.Logger
}

func (b *base) readerOpts() []xmcio.Option {
	return []xmcio.Option{xmcio.WithIndexBase(b.opts.IndexBase)}
}

func (b *base) writerOpts() []xmcio.Option {
	return []xmcio.Option{xmcio.WithIndexBase(b.opts.IndexBase), xmcio.WithPrecision(b.opts.Precision)}
}

// splitWriter writes transformed instances in order to a staged output file.
// The file is published with the rest of the run's outputs.
type splitWriter struct {
	b    *base
	file *xmcio.AtomicFile
	w    *xmcio.Writer
	rep  SplitReport
}

func (b *base) openSplit(outputs *xmcio.AtomicSet, in, out string, h xmcio.Header) (*splitWriter, error) {
	f, err := outputs.Create(out)
	if err != nil {
		return nil, err
	}
	w := xmcio.NewWriter(f, b.writerOpts()...)
	if err := w.WriteHeader(h); err != nil {
		f.Abort()
		return nil, err
	}
	return &splitWriter{b: b, file: f, w: w, rep: SplitReport{Input: in, Output: out}}, nil
}

// write emits instance idx. A zero-norm document is written without features
// and reported, or fails the run when FailOnZeroNorm is set.
func (s *splitWriter) write(idx int, labels []int, feats []xmcio.Feature, zeroNorm bool) error {
	if zeroNorm {
		s.rep.ZeroNorm++
		if s.b.opts.FailOnZeroNorm {
			return xerrors.Newf(xerrors.ErrNumeric, "instance %d has a zero tf-idf norm", idx).At(s.rep.Input, 0)
		}
		s.b.logger.Warn("zero-norm document written without features",
			"file", s.rep.Input,
			"instance", idx,
		)
	}
	if err := s.w.Write(xmcio.Instance{Labels: labels, Features: feats}); err != nil {
		return err
	}
	s.rep.Instances++
	return nil
}

// finish flushes the writer and checks the instance count.
func (s *splitWriter) finish() (SplitReport, error) {
	if err := s.w.Close(); err != nil {
		s.file.Abort()
		return s.rep, err
	}
	return s.rep, nil
}

func (s *splitWriter) abort() {
	s.file.Abort()
}

func weighAt(m *Model, in string, idx int, doc []xmcio.Feature, clamp bool) ([]xmcio.Feature, bool, error) {
	out, zero, err := m.Weigh(doc, clamp)
	if err != nil {
		if appErr, ok := err.(*xerrors.AppError); ok {
			return nil, false, xerrors.Newf(appErr.Err, "instance %d: %s", idx, appErr.Message).At(in, 0)
		}
		return nil, false, err
	}
	return out, zero, nil
}
