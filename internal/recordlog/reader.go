package recordlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SkipFunc is called for every line that is skipped.
type SkipFunc func(line int, text string, err error)

// Reader reads records sequentially.
type Reader struct {
	br      *bufio.Reader
	line    int
	escaped bool
	onSkip  SkipFunc
	err     error
}

// NewReader returns a Reader for r. onSkip may be nil.
// Lines have no length limit, so any payload the recorder wrote reads back.
func NewReader(r io.Reader, onSkip SkipFunc) *Reader {
	return &Reader{br: bufio.NewReader(r), onSkip: onSkip}
}

// readLine returns the next line without its terminator. ok is false once
// the input is exhausted.
func (r *Reader) readLine() (text string, ok bool, err error) {
	text, err = r.br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if err != nil && text == "" {
		return "", false, nil
	}
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	return text, true, nil
}

// Next returns the next record.
//
// It returns io.EOF when the input is exhausted and a *ParseError when a
// line has an unparseable timestamp. Short lines are skipped.
func (r *Reader) Next() (Record, error) {
	if r.err != nil {
		return Record{}, r.err
	}

	for {
		text, ok, err := r.readLine()
		if err != nil {
			r.err = fmt.Errorf("reading records: %w", err)
			return Record{}, r.err
		}
		if !ok {
			break
		}
		r.line++

		if r.line == 1 && text == Header {
			r.escaped = true
			continue
		}

		rec, err := ParseLine(text, r.escaped)
		if errors.Is(err, ErrShortRecord) {
			if r.onSkip != nil {
				r.onSkip(r.line, text, err)
			}
			continue
		}
		if err != nil {
			r.err = &ParseError{Line: r.line, Text: text, Err: err}
			return Record{}, r.err
		}
		return rec, nil
	}

	r.err = io.EOF
	return Record{}, io.EOF
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int {
	return r.line
}

// Escaped reports whether the input carried the escaped-format header.
func (r *Reader) Escaped() bool {
	return r.escaped
}
