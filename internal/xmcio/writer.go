package xmcio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// Writer emits a dataset one instance at a time. Every TF-IDF backend writes
// through it, so their output is byte-identical.
type Writer struct {
	bw        *bufio.Writer
	base      int
	precision int
	header    Header
	written   int
	buf       []byte
}

func NewWriter(w io.Writer, opts ...Option) *Writer {
	o := buildOptions(opts)
	return &Writer{
		bw:        bufio.NewWriterSize(w, 1<<20),
		base:      o.indexBase,
		precision: o.precision,
	}
}

func (w *Writer) WriteHeader(h Header) error {
	w.header = h
	if _, err := fmt.Fprintf(w.bw, "%s\n", h); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

// Write appends one instance line: comma-joined labels, then " id:value" per
// feature. Unlabeled instances therefore start with the separator, and one
// with no features either is written as a lone space.
func (w *Writer) Write(inst Instance) error {
	if w.written >= w.header.Instances {
		return xerrors.Newf(xerrors.ErrConsistency, "header declares %d instances, refusing to write more", w.header.Instances)
	}
	b := w.buf[:0]
	for i, l := range inst.Labels {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(l+w.base), 10)
	}
	for _, f := range inst.Features {
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(f.ID+w.base), 10)
		b = append(b, ':')
		b = formatFloat(b, f.Value, w.precision)
	}
	if len(inst.Labels) == 0 && len(inst.Features) == 0 {
		b = append(b, ' ')
	}
	b = append(b, '\n')
	w.buf = b
	if _, err := w.bw.Write(b); err != nil {
		return fmt.Errorf("writing instance %d: %w", w.written, err)
	}
	w.written++
	return nil
}

// Close flushes buffered output and checks that exactly the declared number
// of instances was written. It does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flushing dataset: %w", err)
	}
	if w.written != w.header.Instances {
		return xerrors.Newf(xerrors.ErrConsistency, "header declares %d instances, wrote %d", w.header.Instances, w.written)
	}
	return nil
}

// WriteCorpus writes a complete dataset.
func WriteCorpus(w io.Writer, c *Corpus, opts ...Option) error {
	dw := NewWriter(w, opts...)
	if err := dw.WriteHeader(c.Header); err != nil {
		return err
	}
	for _, inst := range c.Instances {
		if err := dw.Write(inst); err != nil {
			return err
		}
	}
	return dw.Close()
}
