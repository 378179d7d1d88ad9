package propensity

import (
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
)

// WeightFile names one written weight file.
type WeightFile struct {
	Split string `json:"split"`
	Kind  string `json:"kind"`
	Path  string `json:"path"`
}

// WeightPath expands a pattern such as "weights-{split}-{kind}.txt".
func WeightPath(dir, pattern, split, kind string) string {
	name := strings.NewReplacer("{split}", split, "{kind}", kind).Replace(pattern)
	return filepath.Join(dir, name)
}

// WriteWeightFiles writes, for every split, the positive weights 1/p and an
// all-ones negative placeholder of the same length. The files are published
// together; on error none of them is left behind.
func WriteWeightFiles(dir, pattern string, splits []Split, vectors []Vector) ([]WeightFile, error) {
	outputs := &xmcio.AtomicSet{}
	defer outputs.Abort()

	var written []WeightFile
	for i, s := range splits {
		pos := vectors[i].InverseWeights()
		neg := make([]float64, len(pos))
		for j := range neg {
			neg[j] = 1
		}
		for _, f := range []struct {
			kind   string
			values []float64
		}{{"pos", pos}, {"neg", neg}} {
			path := WeightPath(dir, pattern, s.Name, f.kind)
			out, err := outputs.Create(path)
			if err != nil {
				return nil, err
			}
			if err := xmcio.WriteWeights(out, f.values); err != nil {
				return nil, err
			}
			written = append(written, WeightFile{Split: s.Name, Kind: f.kind, Path: path})
		}
	}
	if err := outputs.Commit(); err != nil {
		return nil, err
	}
	return written, nil
}
