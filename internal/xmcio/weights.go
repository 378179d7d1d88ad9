package xmcio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// WriteWeights writes one value per line in %.18e notation.
func WriteWeights(w io.Writer, values []float64) error {
	bw := bufio.NewWriter(w)
	var b []byte
	for _, v := range values {
		b = strconv.AppendFloat(b[:0], v, 'e', 18, 64)
		b = append(b, '\n')
		if _, err := bw.Write(b); err != nil {
			return fmt.Errorf("writing weights: %w", err)
		}
	}
	return bw.Flush()
}

// ReadWeights reads whitespace-separated floats.
func ReadWeights(r io.Reader, name string) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var out []float64
	for sc.Scan() {
		v, err := parseFloat(sc.Text())
		if err != nil {
			return nil, xerrors.WithFile(err, name)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return out, nil
}

func ReadWeightsFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening weights: %w", err)
	}
	defer f.Close()
	return ReadWeights(f, path)
}
