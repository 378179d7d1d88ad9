// Package propensity estimates per-label propensity scores with Jain's model
// and adapts them across data splits. Propensities feed the PSP@k and
// PSnDCG@k metrics as inverse weights.
package propensity

import (
	"math"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// minDenominator is the smallest adaptation denominator accepted as non-zero.
const minDenominator = 1e-12

// Params are the shape parameters of the Jain model.
type Params struct {
	A float64
	B float64
}

// Vector holds one propensity per label.
type Vector []float64

// InverseWeights returns 1/p for every label.
func (v Vector) InverseWeights() []float64 {
	out := make([]float64, len(v))
	for i, p := range v {
		out[i] = 1 / p
	}
	return out
}

// Jain returns the propensity of every label given its positive count among
// n instances:
//
//	C = (ln n - 1)(b + 1)^a
//	p(c) = 1 / (1 + C * exp(-a * ln(c + b)))
func Jain(counts []int, n int, p Params) (Vector, error) {
	lnN := math.Log(float64(n))
	if lnN-1 <= 0 {
		return nil, xerrors.Newf(xerrors.ErrNumeric, "instance count %d is too small for the propensity model (needs ln n > 1)", n)
	}
	c := (lnN - 1) * math.Pow(p.B+1, p.A)
	out := make(Vector, len(counts))
	for i, cnt := range counts {
		out[i] = 1 / (1 + c*math.Exp(-p.A*math.Log(float64(cnt)+p.B)))
	}
	return out, nil
}

// Marginal turns positive counts into a marginal positive rate.
type Marginal func(positives, total int) float64

// ByFrequency is the raw frequency positives/total.
func ByFrequency(positives, total int) float64 {
	return float64(positives) / float64(total)
}

// ByBeta is the smoothed estimate (positives+1)/(total+1).
func ByBeta(positives, total int) float64 {
	return float64(positives+1) / float64(total+1)
}

// Adapt rescales propensity p, estimated where labels occur at rate
// pooled, to a split where they occur at rate split:
//
//	p * split * (1 - pooled) / (p * (split - pooled) + pooled * (1 - split))
func Adapt(p, pooled, split float64) (float64, error) {
	den := p*(split-pooled) + pooled*(1-split)
	if math.Abs(den) < minDenominator {
		return 0, xerrors.Newf(xerrors.ErrNumeric, "adaptation denominator %.3g is zero", den)
	}
	return split * (1 - pooled) / den * p, nil
}
