package dump

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingTable is matched by every MissingTableError
var ErrMissingTable = errors.New("table not present in dataset")

// FormatError reports an index or table structure that cannot be parsed.
// At Open it is fatal for the whole dataset; from Table it makes only
// that table unavailable.
type FormatError struct {
	Path   string
	Table  string
	Line   int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString("format error")
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, ": table %s", e.Table)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FormatError) Unwrap() error { return e.Err }

// MissingTableError reports that a table is not part of the dataset.
// Most tables are optional; callers treat this as a normal outcome.
type MissingTableError struct {
	Table string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("table %s not present in dataset", e.Table)
}

// Is makes errors.Is(err, ErrMissingTable) match
func (e *MissingTableError) Is(target error) bool {
	return target == ErrMissingTable
}

// DecodeError reports a single value that failed typed decoding.
// The row holding it is skipped and counted.
type DecodeError struct {
	Table  string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s.%s at line %d: %q: %v", e.Table, e.Column, e.Line, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsFormatError reports whether err carries a FormatError
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
