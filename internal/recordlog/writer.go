package recordlog

import (
	"bufio"
	"fmt"
	"io"
)

// Writer appends records to an underlying stream.
//
// Writer is not safe for concurrent use.
type Writer struct {
	w       *bufio.Writer
	escaped bool
	header  bool
	count   int
}

// NewWriter returns a Writer that emits the escaped format, starting with Header.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), escaped: true}
}

// NewLegacyWriter returns a Writer that emits unescaped fields and no header.
// Topics or payloads containing tabs or newlines corrupt such logs.
func NewLegacyWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), header: true}
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	if !w.header {
		if _, err := w.w.WriteString(Header + "\n"); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		w.header = true
	}

	if _, err := w.w.WriteString(FormatLine(rec, w.escaped)); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	w.count++
	return nil
}

// Flush writes any buffered data to the underlying stream.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing records: %w", err)
	}
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}
