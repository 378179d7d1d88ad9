// Package evaluate computes ranking metrics of top-k predictions against
// ground-truth label sets: P@k, nDCG@k and, given inverse propensities,
// PSP@k and PSnDCG@k. All four are cumulative in the cut-off rank.
package evaluate

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// Accumulator holds per-rank running sums over evaluated instances. Index i
// is the cut-off rank i+1. Accumulators over disjoint instance ranges are
// combined with Merge.
type Accumulator struct {
	K         int
	Instances int

	Hits       []float64
	NDCG       []float64
	PSPNum     []float64
	PSPDen     []float64
	PSnDCGNum  []float64
	PSnDCGDen  []float64
	Propensity bool

	weights []float64
}

// NewAccumulator creates an accumulator for cut-offs 1..k. The propensity
// sums are kept only when weighted is set.
func NewAccumulator(k int, weighted bool) *Accumulator {
	a := &Accumulator{
		K:          k,
		Hits:       make([]float64, k),
		NDCG:       make([]float64, k),
		Propensity: weighted,
	}
	if weighted {
		a.PSPNum = make([]float64, k)
		a.PSPDen = make([]float64, k)
		a.PSnDCGNum = make([]float64, k)
		a.PSnDCGDen = make([]float64, k)
	}
	return a
}

// Add folds one labelled instance in. invProp holds 1/propensity per label
// and is ignored by unweighted accumulators.
func (a *Accumulator) Add(truth []int, pred []xmcio.Prediction, invProp []float64) error {
	if len(truth) == 0 {
		return xerrors.New(xerrors.ErrNumeric, "instance without labels has no ideal gain")
	}
	k := a.K
	if len(pred) > k {
		pred = pred[:k]
	}
	ideal := min(len(truth), k)

	// P@k and nDCG@k
	var hits, gain, idealGain float64
	for i := 0; i < k; i++ {
		if i < len(pred) && contains(truth, pred[i].Label) {
			hits++
			gain += 1 / math.Log(float64(i)+2)
		}
		if i < ideal {
			idealGain += 1 / math.Log(float64(i)+2)
		}
		a.Hits[i] += hits
		a.NDCG[i] += gain / idealGain
	}
	a.Instances++

	if !a.Propensity {
		return nil
	}

	for _, l := range truth {
		if l >= len(invProp) {
			return xerrors.Newf(xerrors.ErrConsistency, "label %d has no propensity weight (%d weights)", l, len(invProp))
		}
	}
	a.weights = a.weights[:0]
	for _, l := range truth {
		a.weights = append(a.weights, invProp[l])
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(a.weights)))

	var pspNum, pspDen, psNum, psDen float64
	for i := 0; i < k; i++ {
		disc := math.Log2(float64(i) + 2)
		if i < len(pred) && contains(truth, pred[i].Label) {
			w := invProp[pred[i].Label]
			pspNum += w
			psNum += w / disc
		}
		if i < ideal {
			pspDen += a.weights[i]
			psDen += a.weights[i] / disc
		}
		a.PSPNum[i] += pspNum
		a.PSPDen[i] += pspDen
		a.PSnDCGNum[i] += psNum
		a.PSnDCGDen[i] += psDen
	}
	return nil
}

func contains(labels []int, l int) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}

// Merge adds b into a elementwise and returns a.
func (a *Accumulator) Merge(b *Accumulator) *Accumulator {
	a.Instances += b.Instances
	addInto(a.Hits, b.Hits)
	addInto(a.NDCG, b.NDCG)
	if a.Propensity && b.Propensity {
		addInto(a.PSPNum, b.PSPNum)
		addInto(a.PSPDen, b.PSPDen)
		addInto(a.PSnDCGNum, b.PSnDCGNum)
		addInto(a.PSnDCGDen, b.PSnDCGDen)
	}
	return a
}

func addInto(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Result holds percentages per cut-off; index i is rank i+1.
type Result struct {
	K         int       `json:"k"`
	Instances int       `json:"instances"`
	Unlabeled int       `json:"unlabeled"`
	Precision []float64 `json:"precision"`
	NDCG      []float64 `json:"ndcg"`
	PSP       []float64 `json:"psp,omitempty"`
	PSnDCG    []float64 `json:"psndcg,omitempty"`
}

// Result converts the sums to averages. Only now are the sums divided.
func (a *Accumulator) Result() (*Result, error) {
	if a.Instances == 0 {
		return nil, xerrors.New(xerrors.ErrNumeric, "no labelled instances to evaluate")
	}
	n := float64(a.Instances)
	r := &Result{
		K:         a.K,
		Instances: a.Instances,
		Precision: make([]float64, a.K),
		NDCG:      make([]float64, a.K),
	}
	for i := 0; i < a.K; i++ {
		r.Precision[i] = a.Hits[i] * 100 / (n * float64(i+1))
		r.NDCG[i] = a.NDCG[i] * 100 / n
	}
	if !a.Propensity {
		return r, nil
	}
	r.PSP = make([]float64, a.K)
	r.PSnDCG = make([]float64, a.K)
	for i := 0; i < a.K; i++ {
		if a.PSPDen[i] <= 0 || a.PSnDCGDen[i] <= 0 {
			return nil, xerrors.Newf(xerrors.ErrNumeric, "propensity-scored ideal gain at rank %d is not positive", i+1)
		}
		r.PSP[i] = a.PSPNum[i] * 100 / a.PSPDen[i]
		r.PSnDCG[i] = a.PSnDCGNum[i] * 100 / a.PSnDCGDen[i]
	}
	return r, nil
}
