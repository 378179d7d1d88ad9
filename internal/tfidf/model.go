// Package tfidf turns raw bag-of-words counts into L2-normalised TF-IDF
// features. Two interchangeable backends produce byte-identical output: one
// holds the corpus in memory and transforms instance ranges in parallel, the
// other streams the file twice and never holds more than one document.
package tfidf

import (
	"math"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// Model holds the document frequencies fitted on a training corpus.
type Model struct {
	Instances int
	DF        []int

	once sync.Once
	idf  []float64
}

func NewModel(instances, features int) *Model {
	return &Model{Instances: instances, DF: make([]int, features)}
}

// roundCount rounds half to even, matching numpy.round.
func roundCount(v float64) (float64, error) {
	c := math.RoundToEven(v)
	if c < 0 {
		return 0, xerrors.Newf(xerrors.ErrFormat, "negative term count %v", v)
	}
	return c, nil
}

// Observe adds one document to the document-frequency table.
func (m *Model) Observe(doc []xmcio.Feature) error {
	for _, f := range doc {
		c, err := roundCount(f.Value)
		if err != nil {
			return err
		}
		if c == 0 {
			continue
		}
		if f.ID >= len(m.DF) {
			grown := make([]int, f.ID+1)
			copy(grown, m.DF)
			m.DF = grown
		}
		m.DF[f.ID]++
	}
	return nil
}

// Merge adds the document frequencies of o. Instances is left untouched, it
// always comes from the corpus header.
func (m *Model) Merge(o *Model) *Model {
	if len(o.DF) > len(m.DF) {
		grown := make([]int, len(o.DF))
		copy(grown, m.DF)
		m.DF = grown
	}
	for i, d := range o.DF {
		m.DF[i] += d
	}
	return m
}

// IDF returns ln(N/df) for every fitted feature. Features with df == 0 get NaN.
func (m *Model) IDF() []float64 {
	m.once.Do(func() {
		m.idf = make([]float64, len(m.DF))
		n := float64(m.Instances)
		for i, d := range m.DF {
			if d == 0 {
				m.idf[i] = math.NaN()
				continue
			}
			m.idf[i] = math.Log(n / float64(d))
		}
	})
	return m.idf
}

// idfOf returns the idf of feature f. With clamp set, a feature never seen
// while fitting is treated as occurring once.
func (m *Model) idfOf(f int, clamp bool) (float64, error) {
	idf := m.IDF()
	if f < len(idf) && m.DF[f] > 0 {
		return idf[f], nil
	}
	if clamp {
		return math.Log(float64(m.Instances)), nil
	}
	return 0, xerrors.Newf(xerrors.ErrConsistency, "feature %d occurs but has document frequency 0", f)
}

// Weigh computes the normalised TF-IDF vector of one raw document. Entries
// whose count rounds to zero are dropped. zeroNorm is set when a non-empty
// document ends up with a zero weight vector; no features are returned then.
func (m *Model) Weigh(doc []xmcio.Feature, clamp bool) (out []xmcio.Feature, zeroNorm bool, err error) {
	out = make([]xmcio.Feature, 0, len(doc))
	var sq float64
	for _, f := range doc {
		c, err := roundCount(f.Value)
		if err != nil {
			return nil, false, err
		}
		if c == 0 {
			continue
		}
		idf, err := m.idfOf(f.ID, clamp)
		if err != nil {
			return nil, false, err
		}
		w := (1 + math.Log(c)) * idf
		out = append(out, xmcio.Feature{ID: f.ID, Value: w})
		sq += w * w
	}
	if len(doc) == 0 {
		return out, false, nil
	}
	norm := math.Sqrt(sq)
	if norm == 0 {
		return out[:0], true, nil
	}
	for i := range out {
		out[i].Value /= norm
	}
	return out, false, nil
}
