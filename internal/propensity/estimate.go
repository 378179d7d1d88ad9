package propensity

import (
	"fmt"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// Split is the label statistics of one named data split. The first split
// passed to Estimate is the training split.
type Split struct {
	Name   string
	Counts xmcio.LabelCounts
}

// Estimate computes one propensity vector per split, in input order.
//
// individual, legacy: Jain on each split's own counts, but always with the
// training split's instance count.
// joint: Jain on pooled counts and instances, shared by every split.
// frequency, beta: Jain on pooled counts, adapted to each split's marginal.
func Estimate(mode string, p Params, splits []Split) ([]Vector, error) {
	if len(splits) == 0 {
		return nil, xerrors.New(xerrors.ErrConfig, "at least one split is required")
	}
	labels := len(splits[0].Counts.Counts)
	for _, s := range splits[1:] {
		if len(s.Counts.Counts) != labels {
			return nil, xerrors.Newf(xerrors.ErrConsistency,
				"split %s has %d labels, split %s has %d", s.Name, len(s.Counts.Counts), splits[0].Name, labels).InSplit(s.Name)
		}
	}

	switch strings.ToLower(mode) {
	case config.ModeIndividual, config.ModeLegacy:
		return individual(p, splits)
	case config.ModeJoint:
		return joint(p, splits)
	case config.ModeFrequency:
		return adapted(p, splits, ByFrequency, frequencyHint)
	case config.ModeBeta:
		return adapted(p, splits, ByBeta, "")
	}
	return nil, xerrors.Newf(xerrors.ErrConfig, "unknown propensity mode %q", mode)
}

func individual(p Params, splits []Split) ([]Vector, error) {
	n := splits[0].Counts.Instances
	out := make([]Vector, len(splits))
	for i, s := range splits {
		v, err := Jain(s.Counts.Counts, n, p)
		if err != nil {
			return nil, inSplit(err, s.Name)
		}
		out[i] = v
	}
	return out, nil
}

func pool(splits []Split) xmcio.LabelCounts {
	total := xmcio.LabelCounts{Counts: make([]int, len(splits[0].Counts.Counts))}
	for _, s := range splits {
		total.Instances += s.Counts.Instances
		total.Unlabeled += s.Counts.Unlabeled
		for l, c := range s.Counts.Counts {
			total.Counts[l] += c
		}
	}
	return total
}

func joint(p Params, splits []Split) ([]Vector, error) {
	total := pool(splits)
	v, err := Jain(total.Counts, total.Instances, p)
	if err != nil {
		return nil, inSplit(err, "pooled")
	}
	out := make([]Vector, len(splits))
	for i := range splits {
		out[i] = append(Vector(nil), v...)
	}
	return out, nil
}

// frequencyHint is appended to numeric failures of the unsmoothed estimator,
// which maps any label without positives in a split to 0.
const frequencyHint = "; labels without positives in a split cannot be adapted in frequency mode, use beta mode"

func adapted(p Params, splits []Split, est Marginal, hint string) ([]Vector, error) {
	total := pool(splits)
	base, err := Jain(total.Counts, total.Instances, p)
	if err != nil {
		return nil, inSplit(err, "pooled")
	}
	out := make([]Vector, len(splits))
	for i, s := range splits {
		v := make(Vector, len(base))
		for l := range base {
			pooled := est(total.Counts[l], total.Instances)
			rate := est(s.Counts.Counts[l], s.Counts.Instances)
			a, err := Adapt(base[l], pooled, rate)
			if err != nil {
				if appErr, ok := err.(*xerrors.AppError); ok {
					appErr.Message += hint
				}
				return nil, labelError(err, l, s.Name)
			}
			if a <= 0 || a > 1+1e-9 || math.IsNaN(a) {
				return nil, xerrors.Newf(xerrors.ErrNumeric,
					"label %d: adapted propensity %g outside (0, 1]%s", l, a, hint).InSplit(s.Name)
			}
			v[l] = a
		}
		out[i] = v
	}
	return out, nil
}

func inSplit(err error, split string) error {
	if appErr, ok := err.(*xerrors.AppError); ok {
		return appErr.InSplit(split)
	}
	return err
}

func labelError(err error, label int, split string) error {
	if appErr, ok := err.(*xerrors.AppError); ok {
		return xerrors.Newf(appErr.Err, "label %d: %s", label, appErr.Message).InSplit(split)
	}
	return fmt.Errorf("label %d in split %s: %w", label, split, err)
}
