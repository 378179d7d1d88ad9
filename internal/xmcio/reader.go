package xmcio

import (
	"bufio"
	"fmt"
	"io"
	"os"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// Reader streams instances from a dataset file in file order.
type Reader struct {
	sc     *bufio.Scanner
	name   string
	line   int
	base   int
	header Header
	read   int
}

// NewReader consumes the header line and returns a Reader positioned on the
// first instance. name is used in error messages only.
func NewReader(r io.Reader, name string, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	rd := &Reader{sc: sc, name: name, base: o.indexBase}

	line, ok, err := rd.nextLine(true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.New(xerrors.ErrFormat, "missing header line").At(name, 0)
	}
	h, err := ParseHeader(line)
	if err != nil {
		return nil, annotate(err, name, rd.line)
	}
	rd.header = h
	return rd, nil
}

// nextLine returns the next line, skipping '#' comments. Blank lines are
// skipped only when skipBlank is set.
func (r *Reader) nextLine(skipBlank bool) (string, bool, error) {
	for r.sc.Scan() {
		r.line++
		text := r.sc.Text()
		if n := len(text); n > 0 && text[n-1] == '\r' {
			text = text[:n-1]
		}
		if isComment(text) {
			continue
		}
		if skipBlank && isBlank(text) {
			continue
		}
		return text, true, nil
	}
	if err := r.sc.Err(); err != nil {
		return "", false, fmt.Errorf("reading %s: %w", r.name, err)
	}
	return "", false, nil
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return false
		}
	}
	return true
}

func (r *Reader) Header() Header { return r.header }

// Line returns the number of the last line consumed.
func (r *Reader) Line() int { return r.line }

// Next returns the next instance, or io.EOF once the declared number of
// instances has been read. A file with fewer or more instance lines than its
// header declares is a consistency error.
func (r *Reader) Next() (Instance, error) {
	if r.read == r.header.Instances {
		extra, ok, err := r.nextLine(true)
		if err != nil {
			return Instance{}, err
		}
		if ok {
			return Instance{}, xerrors.Newf(xerrors.ErrConsistency,
				"header declares %d instances but more lines follow (%.20q)", r.header.Instances, extra).At(r.name, r.line)
		}
		return Instance{}, io.EOF
	}
	text, ok, err := r.nextLine(false)
	if err != nil {
		return Instance{}, err
	}
	if !ok {
		return Instance{}, xerrors.Newf(xerrors.ErrConsistency,
			"header declares %d instances, found %d", r.header.Instances, r.read).At(r.name, r.line)
	}
	inst, err := parseInstance(text, r.header, r.base)
	if err != nil {
		return Instance{}, annotate(err, r.name, r.line)
	}
	r.read++
	return inst, nil
}

func annotate(err error, name string, line int) error {
	if appErr, ok := err.(*xerrors.AppError); ok {
		return appErr.At(name, line)
	}
	return err
}

// ReadCorpus loads a complete dataset.
func ReadCorpus(r io.Reader, name string, opts ...Option) (*Corpus, error) {
	rd, err := NewReader(r, name, opts...)
	if err != nil {
		return nil, err
	}
	c := &Corpus{Header: rd.Header(), Instances: make([]Instance, 0, rd.Header().Instances)}
	for {
		inst, err := rd.Next()
		if err == io.EOF {
			return c, nil
		}
		if err != nil {
			return nil, err
		}
		c.Instances = append(c.Instances, inst)
	}
}

// ReadCorpusFile loads a complete dataset from path.
func ReadCorpusFile(path string, opts ...Option) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return ReadCorpus(f, path, opts...)
}
