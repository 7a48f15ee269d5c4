package dump

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// maxDecodeErrors caps how many decode errors a table keeps for reporting
const maxDecodeErrors = 16

type column struct {
	name   string
	kind   ColumnKind
	strs   []string
	ints   []int64
	uints  []uint64
	floats []float64
	valid  []bool
}

func (c *column) has(i int) bool {
	return c != nil && i >= 0 && i < len(c.valid) && c.valid[i]
}

// Table is a materialized, immutable, columnar table.
// Every row has the same width; values that were N/A or ERR are missing.
type Table struct {
	name    string
	source  string
	columns []*column
	byName  map[string]*column
	rows    int
	skipped int
	errs    []*DecodeError
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// Source returns the file the table was read from
func (t *Table) Source() string { return t.source }

// Len returns the number of decoded rows
func (t *Table) Len() int { return t.rows }

// Skipped returns how many rows were dropped because a value failed to decode
func (t *Table) Skipped() int { return t.skipped }

// DecodeErrors returns the first decode errors seen while materializing
func (t *Table) DecodeErrors() []*DecodeError {
	out := make([]*DecodeError, len(t.errs))
	copy(out, t.errs)
	return out
}

// Columns returns the column names in header order
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.name
	}
	return out
}

// HasColumn reports whether the header declared the column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// ColumnKind returns the decoded kind of a column
func (t *Table) ColumnKind(name string) (ColumnKind, bool) {
	c, ok := t.byName[name]
	if !ok {
		return KindString, false
	}
	return c.kind, true
}

func (t *Table) typed(name string, kind ColumnKind) *column {
	c, ok := t.byName[name]
	if !ok || c.kind != kind {
		return nil
	}
	return c
}

// Strings returns a string accessor. Absent columns report every cell missing.
func (t *Table) Strings(name string) StringColumn { return StringColumn{c: t.typed(name, KindString)} }

// Ints returns a signed integer accessor
func (t *Table) Ints(name string) IntColumn { return IntColumn{c: t.typed(name, KindInt)} }

// Uints returns an unsigned counter accessor
func (t *Table) Uints(name string) UintColumn { return UintColumn{c: t.typed(name, KindUint)} }

// Floats returns a floating point accessor
func (t *Table) Floats(name string) FloatColumn { return FloatColumn{c: t.typed(name, KindFloat)} }

// StringColumn reads a string column
type StringColumn struct{ c *column }

// Present reports whether the column exists in the table
func (s StringColumn) Present() bool { return s.c != nil }

// At returns the decoded value and whether it is present
func (s StringColumn) At(i int) (string, bool) {
	if !s.c.has(i) {
		return "", false
	}
	return s.c.strs[i], true
}

// Raw returns the exact source bytes of the value
func (s StringColumn) Raw(i int) ([]byte, bool) {
	v, ok := s.At(i)
	if !ok {
		return nil, false
	}
	return encodeLatin1(v), true
}

// IntColumn reads a signed integer column
type IntColumn struct{ c *column }

// Present reports whether the column exists in the table
func (s IntColumn) Present() bool { return s.c != nil }

// At returns the decoded value and whether it is present
func (s IntColumn) At(i int) (int64, bool) {
	if !s.c.has(i) {
		return 0, false
	}
	return s.c.ints[i], true
}

// UintColumn reads an unsigned counter column
type UintColumn struct{ c *column }

// Present reports whether the column exists in the table
func (s UintColumn) Present() bool { return s.c != nil }

// At returns the decoded value and whether it is present
func (s UintColumn) At(i int) (uint64, bool) {
	if !s.c.has(i) {
		return 0, false
	}
	return s.c.uints[i], true
}

// FloatColumn reads a floating point column
type FloatColumn struct{ c *column }

// Present reports whether the column exists in the table
func (s FloatColumn) Present() bool { return s.c != nil }

// At returns the decoded value and whether it is present
func (s FloatColumn) At(i int) (float64, bool) {
	if !s.c.has(i) {
		return 0, false
	}
	return s.c.floats[i], true
}

// IsMissingToken reports whether a raw value denotes a missing value
func IsMissingToken(v string) bool {
	switch strings.TrimSpace(v) {
	case "N/A", "ERR":
		return true
	}
	return false
}

// tableBuilder validates the header against the schema and appends rows
type tableBuilder struct {
	t       *Table
	path    string
	scratch []cell
}

type cell struct {
	s     string
	i     int64
	u     uint64
	f     float64
	valid bool
}

func newTableBuilder(name, path string, header []string) (*tableBuilder, error) {
	schema, _ := SchemaFor(name)
	t := &Table{
		name:   name,
		source: path,
		byName: make(map[string]*column, len(header)),
	}

	for _, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, &FormatError{Path: path, Table: name, Reason: "empty column name in header"}
		}
		if _, dup := t.byName[h]; dup {
			return nil, &FormatError{Path: path, Table: name, Reason: fmt.Sprintf("duplicate column %q", h)}
		}
		kind := KindString
		if c, ok := schema.column(h); ok {
			kind = c.Kind
		}
		col := &column{name: h, kind: kind}
		t.columns = append(t.columns, col)
		t.byName[h] = col
	}

	if schema != nil {
		for _, c := range schema.Columns {
			if c.Required && !t.HasColumn(c.Name) {
				return nil, &FormatError{Path: path, Table: name, Reason: fmt.Sprintf("missing required column %q", c.Name)}
			}
		}
	}

	return &tableBuilder{t: t, path: path, scratch: make([]cell, len(t.columns))}, nil
}

// add decodes one record. A decode failure skips the row and is counted.
func (b *tableBuilder) add(record []string, line int) error {
	if len(record) != len(b.t.columns) {
		return &FormatError{
			Path:   b.path,
			Table:  b.t.name,
			Line:   line,
			Reason: fmt.Sprintf("row has %d values, header declares %d", len(record), len(b.t.columns)),
		}
	}

	for i, col := range b.t.columns {
		c, err := decodeCell(col.kind, record[i])
		if err != nil {
			b.t.skipped++
			if len(b.t.errs) < maxDecodeErrors {
				b.t.errs = append(b.t.errs, &DecodeError{
					Table:  b.t.name,
					Line:   line,
					Column: col.name,
					Value:  record[i],
					Err:    err,
				})
			}
			return nil
		}
		b.scratch[i] = c
	}

	for i, col := range b.t.columns {
		c := b.scratch[i]
		col.valid = append(col.valid, c.valid)
		switch col.kind {
		case KindInt:
			col.ints = append(col.ints, c.i)
		case KindUint:
			col.uints = append(col.uints, c.u)
		case KindFloat:
			col.floats = append(col.floats, c.f)
		default:
			col.strs = append(col.strs, c.s)
		}
	}
	b.t.rows++
	return nil
}

func (b *tableBuilder) table() *Table {
	return b.t
}

var errNotNumeric = errors.New("not a number")

func decodeCell(kind ColumnKind, raw string) (cell, error) {
	if IsMissingToken(raw) {
		return cell{}, nil
	}

	if kind == KindString {
		return cell{s: raw, valid: true}, nil
	}

	v := strings.TrimSpace(raw)
	if v == "" {
		return cell{}, nil
	}

	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return cell{}, numErr(err)
		}
		return cell{i: n, valid: true}, nil
	case KindUint:
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return cell{}, numErr(err)
		}
		return cell{u: n, valid: true}, nil
	case KindFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cell{}, numErr(err)
		}
		return cell{f: f, valid: true}, nil
	}
	return cell{}, errNotNumeric
}

func numErr(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", errNotNumeric, ne.Err)
	}
	return err
}
