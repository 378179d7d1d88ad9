package propensity

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

var defaultParams = Params{A: 0.55, B: 1.5}

func split(name string, n int, counts ...int) Split {
	return Split{Name: name, Counts: xmcio.LabelCounts{Instances: n, Counts: counts}}
}

func TestJainReferenceValues(t *testing.T) {
	v, err := Jain([]int{10, 0}, 100, defaultParams)
	require.NoError(t, err)
	assert.InDelta(t, 0.391017310604, v[0], 1e-12)
	assert.InDelta(t, 0.173170324973, v[1], 1e-12)
	for _, p := range v {
		assert.Greater(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestJainRejectsTinyInstanceCount(t *testing.T) {
	_, err := Jain([]int{1}, 2, defaultParams)
	assert.ErrorIs(t, err, xerrors.ErrNumeric)
}

func TestAdapt(t *testing.T) {
	got, err := Adapt(0.5, 0.1, 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 0.692307692308, got, 1e-12)

	// identical marginals leave the propensity unchanged
	got, err = Adapt(0.37, 0.25, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0.37, got, 1e-15)

	_, err = Adapt(0.5, 0, 0)
	assert.ErrorIs(t, err, xerrors.ErrNumeric)
}

func TestIndividualUsesTrainingInstanceCount(t *testing.T) {
	splits := []Split{split("train", 100, 10, 2), split("test", 5000, 10, 2)}
	for _, mode := range []string{"individual", "legacy", "LEGACY"} {
		v, err := Estimate(mode, defaultParams, splits)
		require.NoError(t, err, mode)
		require.Len(t, v, 2)
		assert.InDelta(t, 0.391017310604, v[1][0], 1e-12)
		assert.InDelta(t, 0.250244399744, v[1][1], 1e-12)
		assert.Equal(t, v[0], v[1])
	}
}

func TestJointIdenticalAcrossSplits(t *testing.T) {
	splits := []Split{split("train", 100, 10, 3), split("test", 50, 2, 1)}
	v, err := Estimate("joint", defaultParams, splits)
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.Equal(t, v[0], v[1])
	assert.InDelta(t, 0.386646588023, v[0][0], 1e-12)
	assert.InDelta(t, 0.277820578897, v[0][1], 1e-12)

	v[0][0] = 0
	assert.NotZero(t, v[1][0], "splits must not share backing arrays")
}

func TestAdaptedModes(t *testing.T) {
	splits := []Split{split("train", 100, 10, 3), split("test", 50, 2, 1)}
	tests := []struct {
		mode  string
		train []float64
		test  []float64
	}{
		{"frequency", []float64{0.446132925414, 0.302782109559}, []float64{0.231984915025, 0.222733697763}},
		{"beta", []float64{0.449908524173, 0.316577320272}, []float64{0.294897649228, 0.314362449881}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			v, err := Estimate(tt.mode, defaultParams, splits)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.train, []float64(v[0]), 1e-12)
			assert.InDeltaSlice(t, tt.test, []float64(v[1]), 1e-12)
		})
	}
}

func TestFrequencyWithoutPooledPositivesIsFatal(t *testing.T) {
	splits := []Split{split("train", 100, 10, 0), split("test", 50, 2, 0)}
	_, err := Estimate("frequency", defaultParams, splits)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrNumeric)
	assert.Contains(t, err.Error(), "label 1")
	assert.Contains(t, err.Error(), "split train")
	assert.Contains(t, err.Error(), "use beta mode")

	// the smoothed estimator keeps the denominator away from zero
	_, err = Estimate("beta", defaultParams, splits)
	assert.NoError(t, err)
}

func TestFrequencyRejectsLabelMissingFromSplit(t *testing.T) {
	splits := []Split{split("train", 100, 10, 3), split("test", 50, 5, 0)}
	_, err := Estimate("frequency", defaultParams, splits)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrNumeric)
	assert.Contains(t, err.Error(), "label 1")
	assert.Contains(t, err.Error(), "split test")
	assert.Contains(t, err.Error(), "use beta mode")

	vs, err := Estimate("beta", defaultParams, splits)
	require.NoError(t, err)
	assert.Greater(t, vs[1][1], 0.0)
}

func TestEstimateErrors(t *testing.T) {
	_, err := Estimate("magic", defaultParams, []Split{split("train", 100, 1)})
	assert.ErrorIs(t, err, xerrors.ErrConfig)

	_, err = Estimate("joint", defaultParams, []Split{split("train", 100, 1, 2), split("test", 10, 1)})
	assert.ErrorIs(t, err, xerrors.ErrConsistency)

	_, err = Estimate("joint", defaultParams, nil)
	assert.ErrorIs(t, err, xerrors.ErrConfig)
}

func TestScaleFreeUnderParameters(t *testing.T) {
	// larger counts always yield larger propensities
	v, err := Jain([]int{0, 1, 5, 50, 500}, 1000, defaultParams)
	require.NoError(t, err)
	for i := 1; i < len(v); i++ {
		assert.Greater(t, v[i], v[i-1])
	}
	assert.False(t, math.IsNaN(v[0]))
}

func TestWriteWeightFiles(t *testing.T) {
	dir := t.TempDir()
	splits := []Split{split("train", 100, 10), split("test", 50, 2)}
	vectors := []Vector{{0.5}, {0.25}}

	files, err := WriteWeightFiles(dir, "weights-{split}-{kind}.txt", splits, vectors)
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, filepath.Join(dir, "weights-train-pos.txt"), files[0].Path)

	data, err := os.ReadFile(filepath.Join(dir, "weights-test-pos.txt"))
	require.NoError(t, err)
	assert.Equal(t, "4.000000000000000000e+00\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "weights-train-neg.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1.000000000000000000e+00\n", string(data))
}

func TestWriteWeightFilesAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	// a plain file where the test split's directory should go
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test"), nil, 0o644))
	splits := []Split{split("train", 100, 10), split("test", 50, 2)}

	_, err := WriteWeightFiles(dir, "{split}/weights-{kind}.txt", splits, []Vector{{0.5}, {0.25}})
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "train", "weights-pos.txt"))
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(filepath.Join(dir, "train"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
