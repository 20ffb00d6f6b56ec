package problems

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// maxElements bounds any single array so that a corrupt count cannot trigger a huge
	// allocation before the data runs out.
	maxElements = 1 << 28
	// preallocCap bounds up-front allocation; larger arrays grow as tokens arrive.
	preallocCap = 1 << 16
	maxTokenLen = 1 << 20
)

// tokenReader reads the whitespace separated tokens of a problem file in order.
type tokenReader struct {
	scanner *bufio.Scanner
	count   int
}

func newTokenReader(r io.Reader) *tokenReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxTokenLen)
	scanner.Split(bufio.ScanWords)
	return &tokenReader{scanner: scanner}
}

func (tr *tokenReader) next(field string) (string, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return "", &ParseError{Kind: UnexpectedToken, Field: field, Token: tr.count + 1, Err: err}
		}
		return "", &ParseError{Kind: PrematureEOF, Field: field, Token: tr.count + 1}
	}
	tr.count++
	return tr.scanner.Text(), nil
}

// readCount reads a non-negative integer dimension.
func (tr *tokenReader) readCount(field string) (int, error) {
	tok, err := tr.next(field)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &ParseError{Kind: UnexpectedToken, Field: field, Token: tr.count, Value: tok, Err: err}
	}
	if n < 0 || n > maxElements {
		return 0, &ParseError{
			Kind: DimensionMismatch, Field: field, Token: tr.count, Value: tok,
			Err: errors.Errorf("count must be in [0, %d]", maxElements),
		}
	}
	return n, nil
}

func (tr *tokenReader) readFloat(field string) (float64, error) {
	tok, err := tr.next(field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, &ParseError{Kind: UnexpectedToken, Field: field, Token: tr.count, Value: tok, Err: err}
	}
	return v, nil
}

// readFloats reads exactly n floats.
func (tr *tokenReader) readFloats(field string, n int) ([]float64, error) {
	buf := make([]float64, 0, min(n, preallocCap))
	for len(buf) < n {
		v, err := tr.readFloat(field)
		if err != nil {
			return nil, err
		}
		buf = append(buf, v)
	}
	return buf, nil
}

// readInto fills dst completely.
func (tr *tokenReader) readInto(field string, dst []float64) error {
	for i := range dst {
		v, err := tr.readFloat(field)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// expectEOF fails if any token is left after the last field.
func (tr *tokenReader) expectEOF() error {
	if tr.scanner.Scan() {
		return &ParseError{
			Kind: DimensionMismatch, Field: "end of file", Token: tr.count + 1, Value: tr.scanner.Text(),
			Err: errors.New("trailing data after the last field"),
		}
	}
	if err := tr.scanner.Err(); err != nil {
		return &ParseError{Kind: UnexpectedToken, Field: "end of file", Token: tr.count + 1, Err: err}
	}
	return nil
}

// elements multiplies dims, failing on overflow or when the product exceeds maxElements.
func elements(field string, dims ...int) (int, error) {
	n := 1
	for _, d := range dims {
		if d < 0 || (d != 0 && n > maxElements/d) {
			return 0, &ParseError{
				Kind: DimensionMismatch, Field: field,
				Err: errors.Errorf("dimensions %v exceed %d elements", dims, maxElements),
			}
		}
		n *= d
	}
	return n, nil
}

// tokenWriter writes tokens in the same order tokenReader consumes them. The first error
// is sticky and returned by flush.
type tokenWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func newTokenWriter(w io.Writer) *tokenWriter {
	return &tokenWriter{w: bufio.NewWriter(w)}
}

func (tw *tokenWriter) writeString(s string) {
	if tw.err != nil {
		return
	}
	n, err := tw.w.WriteString(s)
	tw.n += int64(n)
	tw.err = err
}

func (tw *tokenWriter) counts(vals ...int) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	tw.writeString(strings.Join(parts, " ") + "\n")
}

// rows writes vals with width values per line.
func (tw *tokenWriter) rows(vals []float64, width int) {
	if len(vals) == 0 {
		return
	}
	var sb strings.Builder
	for i, v := range vals {
		if i > 0 {
			if i%width == 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte('\n')
	tw.writeString(sb.String())
}

func (tw *tokenWriter) flush() (int64, error) {
	if tw.err == nil {
		tw.err = tw.w.Flush()
	}
	return tw.n, tw.err
}
