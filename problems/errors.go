package problems

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a problem file could not be loaded.
type ErrorKind int

const (
	// FileNotFound is returned when the file is missing or unreadable. Callers may recover
	// from it, e.g. by trying another path.
	FileNotFound ErrorKind = iota + 1
	// UnexpectedToken is a token that does not parse as the expected integer or float.
	UnexpectedToken
	// DimensionMismatch covers negative or oversized counts, inconsistent array sizes
	// and trailing tokens after the last expected field.
	DimensionMismatch
	// PrematureEOF is returned when the input ends before every field was read.
	PrematureEOF
)

func (k ErrorKind) String() string {
	switch k {
	case FileNotFound:
		return "file not found"
	case UnexpectedToken:
		return "unexpected token"
	case DimensionMismatch:
		return "dimension mismatch"
	case PrematureEOF:
		return "premature end of file"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ParseError is the only error type returned by the loaders. A load that fails never
// exposes a partially populated problem.
type ParseError struct {
	Kind ErrorKind
	// Path is empty when reading from an io.Reader.
	Path string
	// Field names the section being read, e.g. "observations".
	Field string
	// Token is the 1-based index of the offending token, 0 if not applicable.
	Token int
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	prefix := "invalid data file"
	if e.Path != "" {
		prefix = fmt.Sprintf("invalid data file %q", e.Path)
	}
	if e.Kind == FileNotFound {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Kind, e.Err)
	}
	msg := fmt.Sprintf("%s: %s", prefix, e.Kind)
	if e.Field != "" {
		msg += " reading " + e.Field
	}
	if e.Token > 0 {
		msg += fmt.Sprintf(" at token %d", e.Token)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (%q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a ParseError caused by a missing or unreadable file.
func IsNotFound(err error) bool {
	var perr *ParseError
	if errors.As(err, &perr) {
		return perr.Kind == FileNotFound
	}
	return errors.Is(err, fs.ErrNotExist)
}

// KindOf returns the ErrorKind of err, or 0 if err is not a ParseError.
func KindOf(err error) ErrorKind {
	var perr *ParseError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

func withPath(err error, path string) error {
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.Path = path
		return perr
	}
	return errors.Wrapf(err, "loading %s", path)
}
