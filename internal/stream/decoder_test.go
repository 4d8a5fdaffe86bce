package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Scanner) []Line {
	t.Helper()
	var out []Line
	for {
		line, ok := s.Next()
		if !ok {
			break
		}
		// Data is only valid until the next call.
		if line.Data != nil {
			line.Data = append([]byte(nil), line.Data...)
		}
		out = append(out, line)
	}
	return out
}

func TestScannerBasicLines(t *testing.T) {
	s := NewScanner(strings.NewReader("{\"a\":1}\n{\"b\":2}\n"), 0)
	lines := collect(t, s)

	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Number)
	assert.Equal(t, `{"a":1}`, string(lines[0].Data))
	assert.Equal(t, 2, lines[1].Number)
	assert.Equal(t, `{"b":2}`, string(lines[1].Data))
	assert.NoError(t, s.Err())
}

func TestScannerLastLineWithoutNewline(t *testing.T) {
	s := NewScanner(strings.NewReader("{\"a\":1}\n{\"b\":2}"), 0)
	lines := collect(t, s)

	require.Len(t, lines, 2)
	assert.Equal(t, `{"b":2}`, string(lines[1].Data))
}

func TestScannerBlankLinesKeepPhysicalNumbering(t *testing.T) {
	s := NewScanner(strings.NewReader("one\n\n  \nfour\n"), 0)
	lines := collect(t, s)

	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Number)
	assert.Equal(t, "one", string(lines[0].Data))
	assert.Equal(t, 4, lines[1].Number)
	assert.Equal(t, "four", string(lines[1].Data))
}

func TestScannerCRLF(t *testing.T) {
	s := NewScanner(strings.NewReader("one\r\ntwo\r\n"), 0)
	lines := collect(t, s)

	require.Len(t, lines, 2)
	assert.Equal(t, "one", string(lines[0].Data))
	assert.Equal(t, "two", string(lines[1].Data))
}

func TestScannerOversizedLineDoesNotAbort(t *testing.T) {
	long := strings.Repeat("x", 200)
	input := "ok1\n" + long + "\nok2\n"
	s := NewScanner(strings.NewReader(input), 100)
	lines := collect(t, s)

	require.Len(t, lines, 3)
	assert.Nil(t, lines[1].Data)
	require.NotNil(t, lines[1].Err)
	assert.Equal(t, 2, lines[1].Err.Line)
	assert.Contains(t, lines[1].Err.Msg, "exceeds")
	assert.NotEmpty(t, lines[1].Err.Excerpt)

	// Decoding resumes at the next physical line.
	assert.Equal(t, 3, lines[2].Number)
	assert.Equal(t, "ok2", string(lines[2].Data))
}

func TestScannerOversizedLineLargerThanReadBuffer(t *testing.T) {
	long := strings.Repeat("y", readBufSize*2+17)
	s := NewScanner(strings.NewReader(long+"\nok\n"), 1024)
	lines := collect(t, s)

	require.Len(t, lines, 2)
	require.NotNil(t, lines[0].Err)
	assert.Equal(t, 2, lines[1].Number)
	assert.Equal(t, "ok", string(lines[1].Data))
}

func TestScannerMalformedUTF8(t *testing.T) {
	s := NewScanner(strings.NewReader("ok\n\xff\xfe\nok2\n"), 0)
	lines := collect(t, s)

	require.Len(t, lines, 3)
	require.NotNil(t, lines[1].Err)
	assert.Equal(t, "malformed UTF-8", lines[1].Err.Msg)
	assert.Equal(t, "ok2", string(lines[2].Data))
}

func TestScannerLineNumbersStrictlyIncreasing(t *testing.T) {
	input := "a\n\nb\n" + strings.Repeat("z", 50) + "\nc\n"
	s := NewScanner(strings.NewReader(input), 10)
	lines := collect(t, s)

	prev := 0
	for _, l := range lines {
		assert.Greater(t, l.Number, prev)
		prev = l.Number
	}
	assert.Equal(t, 5, prev)
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestScannerTransportErrorTerminates(t *testing.T) {
	readErr := errors.New("connection reset")
	s := NewScanner(&failingReader{data: []byte("one\ntwo\n"), err: readErr}, 0)
	lines := collect(t, s)

	require.Len(t, lines, 2)
	assert.ErrorIs(t, s.Err(), readErr)

	// The sequence is finished; further calls stay terminated.
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestScannerEmptyInput(t *testing.T) {
	s := NewScanner(strings.NewReader(""), 0)
	lines := collect(t, s)
	assert.Empty(t, lines)
	assert.NoError(t, s.Err())

	s = NewScanner(io.MultiReader(), 0)
	lines = collect(t, s)
	assert.Empty(t, lines)
}
