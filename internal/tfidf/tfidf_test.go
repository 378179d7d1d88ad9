package tfidf

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/xmcio"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

const trainBoW = "3 3 2\n0 0:2 1:1\n1 0:1\n0,1 2:3\n"

const trainTFIDF = "3 3 2\n0 0:0.5299 1:0.8480\n1 0:1.0000\n0,1 2:1.0000\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newBackend(t *testing.T, name string, opts Options) Backend {
	t.Helper()
	if opts.Precision == 0 {
		opts.Precision = 4
	}
	b, err := New(name, opts)
	require.NoError(t, err)
	return b
}

func TestBackendsProduceIdenticalOutput(t *testing.T) {
	for _, name := range []string{config.BackendMemory, config.BackendStreaming} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			in := writeFile(t, dir, "train.txt", trainBoW)
			out := filepath.Join(dir, "tfidf-train.txt")

			rep, err := newBackend(t, name, Options{Workers: 2}).Run(context.Background(), Job{TrainIn: in, TrainOut: out})
			require.NoError(t, err)
			assert.Equal(t, name, rep.Backend)
			assert.Equal(t, 3, rep.Train.Instances)
			assert.Zero(t, rep.Train.ZeroNorm)
			assert.Equal(t, []int{2, 1, 1}, rep.Model.DF)
			assert.Equal(t, trainTFIDF, readFile(t, out))
		})
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "train.txt", trainBoW)
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")

	b := newBackend(t, config.BackendMemory, Options{Workers: 3})
	_, err := b.Run(context.Background(), Job{TrainIn: in, TrainOut: first})
	require.NoError(t, err)
	_, err = b.Run(context.Background(), Job{TrainIn: in, TrainOut: second})
	require.NoError(t, err)
	assert.Equal(t, readFile(t, first), readFile(t, second))
}

func TestUnitNorm(t *testing.T) {
	m := NewModel(4, 5)
	docs := [][]xmcio.Feature{
		{{ID: 0, Value: 3}, {ID: 1, Value: 1.2}, {ID: 4, Value: 7}},
		{{ID: 1, Value: 2}, {ID: 2, Value: 0.4}},
		{{ID: 3, Value: 1}},
		{{ID: 0, Value: 1}, {ID: 3, Value: 5}},
	}
	for _, d := range docs {
		require.NoError(t, m.Observe(d))
	}
	for i, d := range docs {
		out, zero, err := m.Weigh(d, false)
		require.NoError(t, err)
		require.False(t, zero, "doc %d", i)
		var sq float64
		for _, f := range out {
			sq += f.Value * f.Value
		}
		assert.InDelta(t, 1.0, math.Sqrt(sq), 1e-12, "doc %d", i)
	}
	// 0.4 rounds to zero and is dropped
	out, _, err := m.Weigh(docs[1], false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestRoundHalfToEven(t *testing.T) {
	m := NewModel(2, 2)
	require.NoError(t, m.Observe([]xmcio.Feature{{ID: 0, Value: 0.5}, {ID: 1, Value: 1.5}}))
	assert.Equal(t, []int{0, 1}, m.DF)

	err := m.Observe([]xmcio.Feature{{ID: 0, Value: -2}})
	assert.ErrorIs(t, err, xerrors.ErrFormat)
}

func TestZeroNormReported(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "train.txt", "2 2 1\n0 0:1\n0 0:3 1:1\n")
	out := filepath.Join(dir, "out.txt")

	rep, err := newBackend(t, config.BackendStreaming, Options{}).Run(context.Background(), Job{TrainIn: in, TrainOut: out})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Train.ZeroNorm)
	assert.Equal(t, "2 2 1\n0\n0 0:0.0000 1:1.0000\n", readFile(t, out))
}

func TestZeroNormFatalLeavesNoOutput(t *testing.T) {
	for _, name := range []string{config.BackendMemory, config.BackendStreaming} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			in := writeFile(t, dir, "train.txt", "2 2 1\n0 0:1\n0 0:3 1:1\n")
			out := filepath.Join(dir, "out.txt")

			_, err := newBackend(t, name, Options{FailOnZeroNorm: true}).Run(context.Background(), Job{TrainIn: in, TrainOut: out})
			require.Error(t, err)
			assert.ErrorIs(t, err, xerrors.ErrNumeric)
			assert.Contains(t, err.Error(), "instance 0")
			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestFittedIDFAppliedToTest(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "train.txt", trainBoW)
	test := writeFile(t, dir, "test.txt", "1 4 2\n 3:1 0:1\n")
	out := filepath.Join(dir, "tfidf-train.txt")
	testOut := filepath.Join(dir, "tfidf-test.txt")

	for _, name := range []string{config.BackendMemory, config.BackendStreaming} {
		rep, err := newBackend(t, name, Options{Workers: 2}).Run(context.Background(), Job{
			TrainIn: in, TrainOut: out, TestIn: test, TestOut: testOut,
		})
		require.NoError(t, err, name)
		require.NotNil(t, rep.Test)
		assert.Equal(t, 1, rep.Test.Instances)
		assert.Equal(t, "1 4 2\n 3:0.9381 0:0.3462\n", readFile(t, testOut), name)
	}
}

func TestFailedTestSplitLeavesNoTrainOutput(t *testing.T) {
	for _, name := range []string{config.BackendMemory, config.BackendStreaming} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			in := writeFile(t, dir, "train.txt", trainBoW)
			test := writeFile(t, dir, "test.txt", "1 4 2\n 9:1\n")
			out := filepath.Join(dir, "tfidf-train.txt")

			_, err := newBackend(t, name, Options{}).Run(context.Background(), Job{
				TrainIn: in, TrainOut: out, TestIn: test, TestOut: filepath.Join(dir, "tfidf-test.txt"),
			})
			require.Error(t, err)
			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr))
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 2, "only the inputs remain")
		})
	}
}

func TestUnseenFeatureWithoutClampIsInconsistent(t *testing.T) {
	m := NewModel(3, 2)
	require.NoError(t, m.Observe([]xmcio.Feature{{ID: 0, Value: 1}}))
	_, _, err := m.Weigh([]xmcio.Feature{{ID: 1, Value: 1}}, false)
	assert.ErrorIs(t, err, xerrors.ErrConsistency)
}

func TestSelect(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "train.txt", trainBoW)
	job := Job{TrainIn: in, TrainOut: filepath.Join(dir, "o.txt")}

	b, err := Select(config.TFIDFConfig{Backend: config.BackendAuto, MemoryLimitMB: 1}, job, Options{})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())

	big := writeFile(t, dir, "big.txt", "1 1 1\n0 "+strings.Repeat("0", 400_000)+":1\n")
	b, err = Select(config.TFIDFConfig{Backend: config.BackendAuto, MemoryLimitMB: 1}, Job{TrainIn: big}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "streaming", b.Name())

	b, err = Select(config.TFIDFConfig{Backend: config.BackendStreaming}, job, Options{})
	require.NoError(t, err)
	assert.Equal(t, "streaming", b.Name())

	_, err = New("gpu", Options{})
	assert.ErrorIs(t, err, xerrors.ErrConfig)
}

func BenchmarkWeigh(b *testing.B) {
	m := NewModel(1000, 5000)
	doc := make([]xmcio.Feature, 0, 200)
	for i := 0; i < 200; i++ {
		doc = append(doc, xmcio.Feature{ID: i * 25, Value: float64(i%7 + 1)})
	}
	for i := 0; i < 50; i++ {
		_ = m.Observe(doc)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = m.Weigh(doc, false)
	}
}
