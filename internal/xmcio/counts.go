package xmcio

import (
	"fmt"
	"io"
	"os"
)

// LabelCounts holds, for one split, the number of positives per label and
// the instance count declared by the file header.
type LabelCounts struct {
	Instances int
	Unlabeled int
	Counts    []int
}

// Positives returns the total number of positive (instance, label) pairs.
func (lc LabelCounts) Positives() int {
	total := 0
	for _, c := range lc.Counts {
		total += c
	}
	return total
}

// CountLabels streams a dataset and counts label occurrences. Unlabeled
// instances contribute nothing but remain part of Instances.
func CountLabels(r io.Reader, name string, opts ...Option) (LabelCounts, error) {
	rd, err := NewReader(r, name, opts...)
	if err != nil {
		return LabelCounts{}, err
	}
	h := rd.Header()
	lc := LabelCounts{Instances: h.Instances, Counts: make([]int, h.Labels)}
	for {
		inst, err := rd.Next()
		if err == io.EOF {
			return lc, nil
		}
		if err != nil {
			return LabelCounts{}, err
		}
		if !inst.Labeled() {
			lc.Unlabeled++
			continue
		}
		for _, l := range inst.Labels {
			lc.Counts[l]++
		}
	}
}

func CountLabelsFile(path string, opts ...Option) (LabelCounts, error) {
	f, err := os.Open(path)
	if err != nil {
		return LabelCounts{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return CountLabels(f, path, opts...)
}
