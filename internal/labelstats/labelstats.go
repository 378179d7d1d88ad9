// Package labelstats summarises the label distribution of a dataset:
// frequency extremes, imbalance ratios, how few labels cover a given share of
// all positives, and a sampled tail-heaviness index.
package labelstats

import (
	"io"
	"math/rand"
	"slices"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
)

// DefaultSamples is the number of random quadruples drawn for Obesity.
const DefaultSamples = 10000

// Coverage states that the Labels most frequent labels hold Percent% of all
// positives.
type Coverage struct {
	Percent  int     `json:"percent"`
	Labels   int     `json:"labels"`
	Relative float64 `json:"relative"`
}

type Stats struct {
	NumLabels     int        `json:"num-labels"`
	NumInstances  int        `json:"num-instances"`
	Unlabeled     int        `json:"unlabeled"`
	Positives     int        `json:"positives"`
	MostFrequent  int        `json:"most-frequent"`
	LeastFrequent int        `json:"least-frequent"`
	IntraIRMin    float64    `json:"intra-IR-min"`
	IntraIRMax    float64    `json:"intra-IR-max"`
	InterIR       float64    `json:"inter-IR"`
	Coverage      []Coverage `json:"coverage"`
	Obesity       float64    `json:"obesity"`
}

// Compute derives the statistics from per-label counts. Obesity is
// estimated from samples random quadruples drawn with the given seed.
func Compute(lc xmcio.LabelCounts, samples int, seed int64) *Stats {
	sorted := slices.Clone(lc.Counts)
	slices.Sort(sorted)

	s := &Stats{
		NumLabels:    len(sorted),
		NumInstances: lc.Instances,
		Unlabeled:    lc.Unlabeled,
		Positives:    lc.Positives(),
	}
	if len(sorted) == 0 {
		return s
	}
	most, least := sorted[len(sorted)-1], sorted[0]
	s.MostFrequent = most
	s.LeastFrequent = least
	s.IntraIRMin = float64(lc.Instances) / float64(max(1, most))
	s.IntraIRMax = float64(lc.Instances) / float64(max(1, least))
	s.InterIR = float64(most) / float64(max(1, least))
	s.Coverage = coverage(sorted, s.Positives)
	s.Obesity = Obesity(sorted, samples, seed)
	return s
}

// coverage walks labels from most to least frequent and records, for every
// tenth percentile, how many labels it takes to reach it.
func coverage(sorted []int, total int) []Coverage {
	if total == 0 {
		return nil
	}
	out := make([]Coverage, 0, 10)
	cum := 0
	percent := 10
	for i := len(sorted) - 1; i >= 0 && percent <= 100; i-- {
		cum += sorted[i]
		used := len(sorted) - i
		for percent <= 100 && cum*100 >= total*percent {
			out = append(out, Coverage{
				Percent:  percent,
				Labels:   used,
				Relative: 100 * float64(used) / float64(len(sorted)),
			})
			percent += 10
		}
	}
	return out
}

// Obesity returns the percentage of random quadruples a<=b<=c<=d of sorted
// counts with a+d > b+c. Heavy-tailed distributions score high.
func Obesity(sorted []int, samples int, seed int64) float64 {
	if len(sorted) == 0 || samples <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(seed))
	var idx [4]int
	larger := 0
	for i := 0; i < samples; i++ {
		for j := range idx {
			idx[j] = rng.Intn(len(sorted))
		}
		slices.Sort(idx[:])
		if sorted[idx[0]]+sorted[idx[3]] > sorted[idx[1]]+sorted[idx[2]] {
			larger++
		}
	}
	return 100 * float64(larger) / float64(samples)
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s *Stats) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
