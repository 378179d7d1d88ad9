package xmcio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// PredictionHeader is the first line of a prediction file.
type PredictionHeader struct {
	Instances int
	K         int
}

func (h PredictionHeader) String() string {
	return fmt.Sprintf("%d %d", h.Instances, h.K)
}

func ParsePredictionHeader(line string) (PredictionHeader, error) {
	v, err := parseCounts(line, 2)
	if err != nil {
		return PredictionHeader{}, err
	}
	return PredictionHeader{Instances: v[0], K: v[1]}, nil
}

// Prediction is one ranked (label, score) entry.
type Prediction struct {
	Label int
	Score float64
}

// Predictions is a fully loaded prediction file. Records[i] holds at most K
// entries in file order.
type Predictions struct {
	Header  PredictionHeader
	Records [][]Prediction
}

// ParsePredictionLine parses "l:s l:s ... ". A blank line has no entries.
func ParsePredictionLine(line string, k int) ([]Prediction, error) {
	fields := strings.Fields(line)
	if len(fields) > k {
		return nil, xerrors.Newf(xerrors.ErrFormat, "%d predictions on a line, header allows %d", len(fields), k)
	}
	out := make([]Prediction, 0, len(fields))
	for _, tok := range fields {
		sep := strings.IndexByte(tok, ':')
		if sep <= 0 || sep == len(tok)-1 {
			return nil, xerrors.Newf(xerrors.ErrFormat, "malformed prediction %q, want label:score", tok)
		}
		label, err := strconv.Atoi(tok[:sep])
		if err != nil || label < 0 {
			return nil, xerrors.Newf(xerrors.ErrFormat, "invalid label in %q", tok)
		}
		score, err := parseFloat(tok[sep+1:])
		if err != nil {
			return nil, err
		}
		out = append(out, Prediction{Label: label, Score: score})
	}
	return out, nil
}

// ReadPredictions loads a prediction file. WithIndexBase shifts label ids
// the same way as for datasets.
func ReadPredictions(r io.Reader, name string, opts ...Option) (*Predictions, error) {
	o := buildOptions(opts)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			text := strings.TrimRight(sc.Text(), "\r")
			if isComment(text) {
				continue
			}
			return text, true
		}
		return "", false
	}

	first, ok := next()
	for ok && isBlank(first) {
		first, ok = next()
	}
	if !ok {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return nil, xerrors.New(xerrors.ErrFormat, "missing header line").At(name, 0)
	}
	h, err := ParsePredictionHeader(first)
	if err != nil {
		return nil, annotate(err, name, line)
	}

	p := &Predictions{Header: h, Records: make([][]Prediction, 0, h.Instances)}
	for len(p.Records) < h.Instances {
		text, ok := next()
		if !ok {
			break
		}
		rec, err := ParsePredictionLine(text, h.K)
		if err != nil {
			return nil, annotate(err, name, line)
		}
		for i := range rec {
			rec[i].Label -= o.indexBase
			if rec[i].Label < 0 {
				return nil, xerrors.Newf(xerrors.ErrFormat,
					"label %d below index base %d", rec[i].Label+o.indexBase, o.indexBase).At(name, line)
			}
		}
		p.Records = append(p.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(p.Records) < h.Instances {
		return nil, xerrors.Newf(xerrors.ErrConsistency,
			"header declares %d instances, found %d", h.Instances, len(p.Records)).At(name, line)
	}
	for {
		text, ok := next()
		if !ok {
			break
		}
		if !isBlank(text) {
			return nil, xerrors.Newf(xerrors.ErrConsistency,
				"header declares %d instances but more lines follow", h.Instances).At(name, line)
		}
	}
	return p, nil
}

func ReadPredictionsFile(path string, opts ...Option) (*Predictions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening predictions: %w", err)
	}
	defer f.Close()
	return ReadPredictions(f, path, opts...)
}

// WritePredictions writes header and records. Every entry is followed by a
// separator, so an empty record is a lone space.
func WritePredictions(w io.Writer, p *Predictions) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	if _, err := fmt.Fprintf(bw, "%s\n", p.Header); err != nil {
		return fmt.Errorf("writing prediction header: %w", err)
	}
	var b []byte
	for i, rec := range p.Records {
		b = b[:0]
		if len(rec) == 0 {
			b = append(b, ' ')
		}
		for _, e := range rec {
			b = strconv.AppendInt(b, int64(e.Label), 10)
			b = append(b, ':')
			b = strconv.AppendFloat(b, e.Score, 'g', -1, 64)
			b = append(b, ' ')
		}
		b = append(b, '\n')
		if _, err := bw.Write(b); err != nil {
			return fmt.Errorf("writing prediction %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing predictions: %w", err)
	}
	return nil
}
