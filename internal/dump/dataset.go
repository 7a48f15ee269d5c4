// Package dump reads fabric diagnostic dumps: indexed multi-table files
// and flat telemetry exports. The index is parsed once at Open; tables are
// materialized lazily and cached for the lifetime of the Dataset.
package dump

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	indexedExt = ".db_csv"
	flatExt    = ".csv"

	// rows between cancellation checks while materializing
	checkEvery = 1024
)

// TableSource is read-only, option-style access to named tables
type TableSource interface {
	Lookup(ctx context.Context, name string) (*Table, bool, error)
}

// Dataset is an immutable, lazily loaded collection of named tables
type Dataset struct {
	path    string
	entries map[string]Entry
	names   []string
	cache   *Cache
}

// Option configures Open
type Option func(*Dataset)

// WithCache makes the dataset materialize tables through a caller-owned cache
func WithCache(c *Cache) Option {
	return func(d *Dataset) {
		if c != nil {
			d.cache = c
		}
	}
}

// Open parses the index of a dataset. path may be a directory holding
// indexed (*.db_csv) and flat (*.csv) files, or a single such file.
// A dataset whose index cannot be parsed yields a *FormatError.
func Open(path string, opts ...Option) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "stat dataset", Err: err}
	}

	var files []string
	if info.IsDir() {
		dirEntries, err := os.ReadDir(path)
		if err != nil {
			return nil, &FormatError{Path: path, Reason: "read dataset directory", Err: err}
		}
		for _, de := range dirEntries {
			if de.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(de.Name()))
			if ext == indexedExt || ext == flatExt {
				files = append(files, filepath.Join(path, de.Name()))
			}
		}
		if len(files) == 0 {
			return nil, &FormatError{Path: path, Reason: "no dataset files found"}
		}
	} else {
		files = []string{path}
	}

	d := &Dataset{
		path:    path,
		entries: make(map[string]Entry),
		cache:   NewCache(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, file := range files {
		entries, err := indexFile(file)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if prev, dup := d.entries[e.Name]; dup {
				return nil, &FormatError{
					Path:   file,
					Table:  e.Name,
					Reason: fmt.Sprintf("table also declared by %s", filepath.Base(prev.File)),
				}
			}
			d.entries[e.Name] = e
			d.names = append(d.names, e.Name)
		}
	}
	sort.Strings(d.names)

	return d, nil
}

func indexFile(file string) ([]Entry, error) {
	if strings.ToLower(filepath.Ext(file)) == flatExt {
		info, err := os.Stat(file)
		if err != nil {
			return nil, &FormatError{Path: file, Reason: "stat", Err: err}
		}
		return []Entry{{
			Name: flatTableName(file),
			File: file,
			Size: info.Size(),
			Line: 1,
			Rows: -1,
			Flat: true,
		}}, nil
	}
	return parseIndex(file)
}

// flatTableName derives a table name from a flat file: telemetry.csv -> TELEMETRY
func flatTableName(file string) string {
	base := filepath.Base(file)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Path returns the path the dataset was opened from
func (d *Dataset) Path() string { return d.path }

// Names returns the table names in sorted order
func (d *Dataset) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Entries returns the index entries in table name order
func (d *Dataset) Entries() []Entry {
	out := make([]Entry, 0, len(d.names))
	for _, n := range d.names {
		out = append(out, d.entries[n])
	}
	return out
}

// Has reports whether the index declares the table
func (d *Dataset) Has(name string) bool {
	_, ok := d.entries[name]
	return ok
}

// Cache returns the cache backing this dataset
func (d *Dataset) Cache() *Cache { return d.cache }

// Close releases the cached tables
func (d *Dataset) Close() error {
	d.cache.Reset()
	return nil
}

// Table returns a materialized table, or a *MissingTableError when the
// dataset does not contain it.
func (d *Dataset) Table(ctx context.Context, name string) (*Table, error) {
	t, ok, err := d.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingTableError{Table: name}
	}
	return t, nil
}

// Lookup returns (table, true, nil) when present, (nil, false, nil) when
// the table is absent, and an error when it is present but unreadable.
func (d *Dataset) Lookup(ctx context.Context, name string) (*Table, bool, error) {
	entry, ok := d.entries[name]
	if !ok {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	t, err := d.cache.load(entry.File+"#"+entry.Name, func() (*Table, error) {
		if entry.Flat {
			return readFlat(ctx, entry)
		}
		return readSection(ctx, entry)
	})
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(latin1Reader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// readSection materializes one table of an indexed file
func readSection(ctx context.Context, entry Entry) (*Table, error) {
	f, err := os.Open(entry.File)
	if err != nil {
		return nil, &FormatError{Path: entry.File, Table: entry.Name, Reason: "open", Err: err}
	}
	defer f.Close()

	cr := newCSVReader(io.NewSectionReader(f, entry.Offset, entry.Size))
	var rec []string
	lineOf := func() int {
		if l := recordLine(cr, rec, err); l > 0 {
			return entry.Line + l - 1
		}
		return 0
	}
	fail := func(reason string, cause error) error {
		return &FormatError{Path: entry.File, Table: entry.Name, Line: lineOf(), Reason: reason, Err: cause}
	}

	rec, err = cr.Read()
	if err != nil || len(rec) != 1 || strings.TrimSpace(rec[0]) != sectionStartPrefix+entry.Name {
		return nil, fail("index offset does not point at "+sectionStartPrefix+entry.Name, err)
	}

	rec, err = cr.Read()
	if err != nil {
		return nil, fail("missing header row", err)
	}
	b, err := newTableBuilder(entry.Name, entry.File, append([]string(nil), rec...))
	if err != nil {
		return nil, err
	}

	end := sectionEndPrefix + entry.Name
	rows := 0
	for {
		rec, err = cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, fail("missing "+end, nil)
		}
		if err != nil {
			return nil, fail("read row", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == end {
			break
		}
		rows++
		if rows%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := b.add(rec, lineOf()); err != nil {
			return nil, err
		}
	}

	if rows != entry.Rows {
		return nil, fail(fmt.Sprintf("index declares %d rows, section holds %d", entry.Rows, rows), nil)
	}

	return b.table(), nil
}

// readFlat materializes a flat telemetry file
func readFlat(ctx context.Context, entry Entry) (*Table, error) {
	f, err := os.Open(entry.File)
	if err != nil {
		return nil, &FormatError{Path: entry.File, Table: entry.Name, Reason: "open", Err: err}
	}
	defer f.Close()

	cr := newCSVReader(f)
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, &FormatError{Path: entry.File, Table: entry.Name, Line: 1, Reason: "missing header row", Err: err}
	}
	b, err := newTableBuilder(entry.Name, entry.File, append([]string(nil), header...))
	if err != nil {
		return nil, err
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line := recordLine(cr, rec, err)
		if err != nil {
			return nil, &FormatError{Path: entry.File, Table: entry.Name, Line: line, Reason: "read row", Err: err}
		}
		rows++
		if rows%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := b.add(rec, line); err != nil {
			return nil, err
		}
	}

	return b.table(), nil
}

// recordLine returns the 1-based line of the record most recently read
func recordLine(cr *csv.Reader, rec []string, err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	if len(rec) == 0 {
		return 0
	}
	line, _ := cr.FieldPos(0)
	return line
}
