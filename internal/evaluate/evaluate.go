package evaluate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/progress"
)

// Truth is the label set of every ground-truth instance, unlabeled ones
// included as nil so indices line up with the prediction file.
type Truth struct {
	Header    xmcio.Header
	Labels    [][]int
	Unlabeled int
}

// LoadTruth streams a dataset keeping only its labels.
func LoadTruth(r io.Reader, name string, opts ...xmcio.Option) (*Truth, error) {
	rd, err := xmcio.NewReader(r, name, opts...)
	if err != nil {
		return nil, err
	}
	t := &Truth{Header: rd.Header(), Labels: make([][]int, 0, rd.Header().Instances)}
	for {
		inst, err := rd.Next()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, err
		}
		if !inst.Labeled() {
			t.Unlabeled++
		}
		t.Labels = append(t.Labels, inst.Labels)
	}
}

func LoadTruthFile(path string, opts ...xmcio.Option) (*Truth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ground truth: %w", err)
	}
	defer f.Close()
	return LoadTruth(f, path, opts...)
}

// LoadInverseWeights reads a weight file of 1/propensity values, one per
// label. Every weight must be positive.
func LoadInverseWeights(path string) ([]float64, error) {
	w, err := xmcio.ReadWeightsFile(path)
	if err != nil {
		return nil, err
	}
	for i, v := range w {
		if v <= 0 || math.IsInf(v, 0) {
			return nil, xerrors.Newf(xerrors.ErrNumeric, "weight of label %d is %g, want a positive finite value", i, v).At(path, 0)
		}
	}
	return w, nil
}

// Input pairs aligned ground truth and predictions.
type Input struct {
	Truth       *Truth
	Predictions *xmcio.Predictions
	// InvPropensity enables PSP@k and PSnDCG@k when non-nil.
	InvPropensity []float64
}

type Evaluator struct {
	workers  int
	progress progress.Factory
	logger   *slog.Logger
}

func New(workers int, prog progress.Factory) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	if prog == nil {
		prog = progress.Silent
	}
	return &Evaluator{workers: workers, progress: prog, logger: logger.WithComponent("evaluate")}
}

// Run scores every labelled instance. Contiguous instance ranges are
// accumulated on separate workers and tree-reduced.
func (e *Evaluator) Run(ctx context.Context, in Input) (*Result, error) {
	t, p := in.Truth, in.Predictions
	if len(t.Labels) != len(p.Records) {
		return nil, xerrors.Newf(xerrors.ErrConsistency,
			"ground truth has %d instances, predictions have %d", len(t.Labels), len(p.Records))
	}
	if in.InvPropensity != nil && len(in.InvPropensity) < t.Header.Labels {
		return nil, xerrors.Newf(xerrors.ErrConsistency,
			"%d propensity weights for %d labels", len(in.InvPropensity), t.Header.Labels)
	}
	k := p.Header.K
	weighted := in.InvPropensity != nil
	bar := e.progress(len(t.Labels), "evaluating")

	parts, err := parallel.MapRanges(ctx, len(t.Labels), e.workers, func(ctx context.Context, r parallel.Range) (*Accumulator, error) {
		acc := NewAccumulator(k, weighted)
		for i := r.Lo; i < r.Hi; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if len(t.Labels[i]) == 0 {
				continue
			}
			if err := acc.Add(t.Labels[i], p.Records[i], in.InvPropensity); err != nil {
				if appErr, ok := err.(*xerrors.AppError); ok {
					return nil, xerrors.Newf(appErr.Err, "instance %d: %s", i, appErr.Message)
				}
				return nil, err
			}
		}
		_ = bar.Add(r.Len())
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	_ = bar.Finish()

	total := parallel.TreeReduce(parts, func(a, b *Accumulator) *Accumulator { return a.Merge(b) })
	if total == nil {
		total = NewAccumulator(k, weighted)
	}
	res, err := total.Result()
	if err != nil {
		return nil, err
	}
	res.Unlabeled = t.Unlabeled
	e.logger.Info("evaluated predictions",
		"instances", res.Instances,
		"unlabeled", res.Unlabeled,
		"k", k,
		"propensity", weighted,
	)
	return res, nil
}

// Format renders the result one metric family per line for the given
// cut-offs, e.g. "P@1:      66.67,    P@3:      ...". Cut-offs above k are
// left out.
func Format(r *Result, ranks []int) string {
	var b strings.Builder
	line := func(name string, values []float64) {
		if values == nil {
			return
		}
		var cells []string
		for _, rank := range ranks {
			if rank < 1 || rank > len(values) {
				continue
			}
			label := fmt.Sprintf("%s@%d:", name, rank)
			cells = append(cells, fmt.Sprintf("%-10s%.2f", label, values[rank-1]))
		}
		if len(cells) == 0 {
			return
		}
		b.WriteString(strings.Join(cells, ",    "))
		b.WriteByte('\n')
	}
	line("P", r.Precision)
	line("nDCG", r.NDCG)
	line("PSP", r.PSP)
	line("PSnDCG", r.PSnDCG)
	return b.String()
}
