package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
)

// dedupeLinearMax is the entry count up to which duplicate labels are found
// by scanning instead of hashing.
const dedupeLinearMax = 32

// TopK returns the k best entries of candidates: descending score, ties
// broken by the lower label id. A label listed more than once keeps its
// highest score, which makes re-merging an already merged file a no-op.
func TopK(candidates []xmcio.Prediction, k int) []xmcio.Prediction {
	if k <= 0 {
		return nil
	}
	unique := dedupe(candidates)
	h := make(predictionHeap, 0, k+1)
	for _, p := range unique {
		heap.Push(&h, p)
		if h.Len() > k {
			heap.Pop(&h)
		}
	}
	result := make([]xmcio.Prediction, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(xmcio.Prediction)
	}
	return result
}

func dedupe(in []xmcio.Prediction) []xmcio.Prediction {
	out := make([]xmcio.Prediction, 0, len(in))
	if len(in) <= dedupeLinearMax {
	outer:
		for _, p := range in {
			for i := range out {
				if out[i].Label == p.Label {
					if p.Score > out[i].Score {
						out[i].Score = p.Score
					}
					continue outer
				}
			}
			out = append(out, p)
		}
		return out
	}
	pos := make(map[int]int, len(in))
	for _, p := range in {
		if i, ok := pos[p.Label]; ok {
			if p.Score > out[i].Score {
				out[i].Score = p.Score
			}
			continue
		}
		pos[p.Label] = len(out)
		out = append(out, p)
	}
	return out
}

// predictionHeap is a min-heap on rank: its root is the entry that would be
// ranked last.
type predictionHeap []xmcio.Prediction

func (h predictionHeap) Len() int { return len(h) }

func (h predictionHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Label > h[j].Label
}

func (h predictionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *predictionHeap) Push(x interface{}) {
	*h = append(*h, x.(xmcio.Prediction))
}

func (h *predictionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Fold merges shard into running, instance by instance. Both must have the
// same number of records.
func Fold(running, shard [][]xmcio.Prediction, k int) [][]xmcio.Prediction {
	out := make([][]xmcio.Prediction, len(running))
	buf := make([]xmcio.Prediction, 0, 2*k)
	for i := range running {
		buf = append(buf[:0], running[i]...)
		buf = append(buf, shard[i]...)
		out[i] = TopK(buf, k)
	}
	return out
}
