package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// DefaultMaxLineBytes caps a single NDJSON line.
	DefaultMaxLineBytes = 1 << 20 // 1 MiB

	readBufSize   = 64 << 10
	excerptMaxLen = 64
)

// DecodeError reports a single undecodable line. The sequence continues
// past it; only transport-level read failures terminate the scanner.
type DecodeError struct {
	Line    int
	Excerpt string
	Msg     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Line is one physical, non-blank input line. Either Data or Err is set.
type Line struct {
	Number int
	Data   []byte
	Err    *DecodeError
}

// Scanner is a pull-based NDJSON line decoder. It holds at most one line
// (bounded by the configured maximum) in memory at a time, making working
// memory independent of total input size. It is single-pass and bound to a
// live reader; it cannot be rewound.
type Scanner struct {
	r        *bufio.Reader
	maxLine  int
	line     int
	buf      []byte
	readErr  error
	finished bool
}

// NewScanner wraps r. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewScanner(r io.Reader, maxLineBytes int) *Scanner {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Scanner{
		r:       bufio.NewReaderSize(r, readBufSize),
		maxLine: maxLineBytes,
		buf:     make([]byte, 0, readBufSize),
	}
}

// Next returns the next non-blank line, skipping blank lines while still
// counting them toward physical line numbers. ok is false once the input
// is exhausted or a transport read error occurred; check Err afterwards.
// The returned Data slice is only valid until the next call.
func (s *Scanner) Next() (Line, bool) {
	for !s.finished {
		data, oversized, ok := s.readLine()
		if !ok {
			return Line{}, false
		}
		s.line++

		if oversized {
			return Line{
				Number: s.line,
				Err: &DecodeError{
					Line:    s.line,
					Excerpt: excerpt(data),
					Msg:     fmt.Sprintf("line exceeds %d bytes", s.maxLine),
				},
			}, true
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			continue // blank line: skipped, but the physical count advanced
		}
		if !utf8.Valid(trimmed) {
			return Line{
				Number: s.line,
				Err: &DecodeError{
					Line:    s.line,
					Excerpt: excerpt(trimmed),
					Msg:     "malformed UTF-8",
				},
			}, true
		}
		return Line{Number: s.line, Data: trimmed}, true
	}
	return Line{}, false
}

// Err reports the transport error that terminated the sequence, if any.
// io.EOF is a normal end and is not reported.
func (s *Scanner) Err() error {
	return s.readErr
}

// readLine accumulates bytes up to the next newline. When the line exceeds
// maxLine it keeps only the head for diagnostics and drains the remainder
// so the next call resumes at the following line.
func (s *Scanner) readLine() (data []byte, oversized bool, ok bool) {
	s.buf = s.buf[:0]
	for {
		chunk, err := s.r.ReadSlice('\n')
		if len(chunk) > 0 {
			if !oversized {
				s.buf = append(s.buf, chunk...)
				if len(s.buf) > s.maxLine {
					oversized = true
					s.buf = s.buf[:min(len(s.buf), excerptMaxLen)]
				}
			}
		}
		switch err {
		case nil:
			if !oversized {
				s.buf = bytes.TrimRight(s.buf, "\r\n")
			}
			return s.buf, oversized, true
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			s.finished = true
			if len(s.buf) == 0 && !oversized {
				return nil, false, false
			}
			return s.buf, oversized, true
		default:
			s.finished = true
			s.readErr = err
			return nil, false, false
		}
	}
}

func excerpt(b []byte) string {
	if len(b) > excerptMaxLen {
		b = b[:excerptMaxLen]
	}
	return string(bytes.ToValidUTF8(b, []byte("�")))
}
