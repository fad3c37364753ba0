package adif

import (
	"bufio"
	"io"
	"strings"
)

// Writer writes an optional header and one record per line.
type Writer struct {
	bw    *bufio.Writer
	count int
}

// NewWriter wraps w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteHeader writes a free-text preamble line followed by the header fields
// and <eoh>. It must be called before the first record.
func (w *Writer) WriteHeader(preamble string, fields Record) error {
	var b strings.Builder
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteByte('\n')
	}
	for _, f := range fields.Fields {
		writeField(&b, f)
		b.WriteByte('\n')
	}
	b.WriteString("<" + tagEOH + ">\n")
	_, err := w.bw.WriteString(b.String())
	return err
}

// Write writes one record terminated by <eor> and a newline.
func (w *Writer) Write(rec Record) error {
	if _, err := w.bw.WriteString(Encode(rec) + "\n"); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count is the number of records written.
func (w *Writer) Count() int { return w.count }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }
