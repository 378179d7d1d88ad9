// Package xmcio reads and writes the line-oriented sparse XMC text formats:
// datasets ("<instances> <features> <labels>" followed by one
// "l,l f:v f:v" line per instance), top-k prediction files and propensity
// weight files.
//
// Ids are held zero-based in memory. WithIndexBase(1) shifts them on the way
// in and out for one-based files.
package xmcio

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// maxLineBytes bounds a single instance line. XMC feature lines get long.
const maxLineBytes = 256 << 20

// Header is the first line of a dataset file.
type Header struct {
	Instances int `json:"instances"`
	Features  int `json:"features"`
	Labels    int `json:"labels"`
}

func (h Header) String() string {
	return fmt.Sprintf("%d %d %d", h.Instances, h.Features, h.Labels)
}

// Feature is one (id, weight) entry of a sparse document.
type Feature struct {
	ID    int
	Value float64
}

// Instance pairs a label set with its sparse document. An instance without
// labels is still part of the corpus.
type Instance struct {
	Labels   []int
	Features []Feature
}

// Labeled reports whether the instance carries at least one label.
func (in Instance) Labeled() bool {
	return len(in.Labels) > 0
}

// Corpus is a fully loaded dataset.
type Corpus struct {
	Header    Header
	Instances []Instance
}

type options struct {
	indexBase int
	precision int
}

// Option configures readers and writers.
type Option func(*options)

// WithIndexBase sets the id offset used on disk (0 or 1).
func WithIndexBase(base int) Option {
	return func(o *options) { o.indexBase = base }
}

// WithPrecision fixes the number of decimals written for feature weights.
// A negative precision writes the shortest exact representation.
func WithPrecision(digits int) Option {
	return func(o *options) { o.precision = digits }
}

func buildOptions(opts []Option) options {
	o := options{precision: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#")
}

// parseCounts parses a header of exactly n positive integers.
func parseCounts(line string, n int) ([]int, error) {
	fields := strings.Fields(line)
	if len(fields) != n {
		return nil, xerrors.Newf(xerrors.ErrFormat, "header must hold exactly %d integers, got %q", n, line)
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, xerrors.Newf(xerrors.ErrFormat, "header field %q is not an integer", f)
		}
		if v <= 0 {
			return nil, xerrors.Newf(xerrors.ErrFormat, "header field %q must be positive", f)
		}
		out[i] = v
	}
	return out, nil
}

// ParseHeader parses a dataset header line.
func ParseHeader(line string) (Header, error) {
	v, err := parseCounts(line, 3)
	if err != nil {
		return Header{}, err
	}
	return Header{Instances: v[0], Features: v[1], Labels: v[2]}, nil
}

func parseFloat(tok string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, xerrors.Newf(xerrors.ErrFormat, "invalid number %q", tok)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, xerrors.Newf(xerrors.ErrFormat, "non-finite number %q", tok)
	}
	return v, nil
}

// parseInstance parses one dataset line against its header. A leading blank
// means the instance has no labels.
func parseInstance(line string, h Header, base int) (Instance, error) {
	var inst Instance
	if line == "" {
		return inst, nil
	}
	rest := line
	if line[0] != ' ' && line[0] != '\t' {
		end := strings.IndexAny(line, " \t")
		if end < 0 {
			end = len(line)
		}
		labelTok := line[:end]
		rest = line[end:]
		if strings.Contains(labelTok, ":") {
			return inst, xerrors.Newf(xerrors.ErrFormat, "expected label list, found feature %q", labelTok)
		}
		labels, err := parseLabels(labelTok, h.Labels, base)
		if err != nil {
			return inst, err
		}
		inst.Labels = labels
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return inst, nil
	}
	inst.Features = make([]Feature, 0, len(fields))
	var seen map[int]struct{}
	prev := -1
	for _, tok := range fields {
		sep := strings.IndexByte(tok, ':')
		if sep <= 0 || sep == len(tok)-1 {
			return inst, xerrors.Newf(xerrors.ErrFormat, "malformed feature %q, want id:value", tok)
		}
		raw, err := strconv.Atoi(tok[:sep])
		if err != nil {
			return inst, xerrors.Newf(xerrors.ErrFormat, "invalid feature id in %q", tok)
		}
		id := raw - base
		if id < 0 || id >= h.Features {
			return inst, xerrors.Newf(xerrors.ErrConsistency, "feature id %d outside [%d, %d)", raw, base, h.Features+base)
		}
		val, err := parseFloat(tok[sep+1:])
		if err != nil {
			return inst, err
		}
		if id <= prev {
			if seen == nil {
				seen = make(map[int]struct{}, len(fields))
				for _, f := range inst.Features {
					seen[f.ID] = struct{}{}
				}
			}
			if _, dup := seen[id]; dup {
				return inst, xerrors.Newf(xerrors.ErrFormat, "duplicate feature id %d", raw)
			}
		}
		if seen != nil {
			seen[id] = struct{}{}
		}
		if id > prev {
			prev = id
		}
		inst.Features = append(inst.Features, Feature{ID: id, Value: val})
	}
	return inst, nil
}

func parseLabels(tok string, numLabels, base int) ([]int, error) {
	parts := strings.Split(tok, ",")
	labels := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, xerrors.Newf(xerrors.ErrFormat, "empty entry in label list %q", tok)
		}
		raw, err := strconv.Atoi(p)
		if err != nil {
			return nil, xerrors.Newf(xerrors.ErrFormat, "invalid label %q", p)
		}
		id := raw - base
		if id < 0 || id >= numLabels {
			return nil, xerrors.Newf(xerrors.ErrConsistency, "label id %d outside [%d, %d)", raw, base, numLabels+base)
		}
		if containsInt(labels, id) {
			continue
		}
		labels = append(labels, id)
	}
	return labels, nil
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func formatFloat(dst []byte, v float64, precision int) []byte {
	if precision < 0 {
		return strconv.AppendFloat(dst, v, 'g', -1, 64)
	}
	return strconv.AppendFloat(dst, v, 'f', precision, 64)
}
