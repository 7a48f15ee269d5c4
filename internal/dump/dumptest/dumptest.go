// Package dumptest writes well-formed indexed dumps for tests
package dumptest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type section struct {
	name     string
	header   []string
	rows     [][]string
	declared int // -1 means use the real row count
}

// Builder assembles an indexed dump file with a correct offset index
type Builder struct {
	sections []*section
}

// New creates an empty builder
func New() *Builder {
	return &Builder{}
}

// Table appends a table section. Cells are written verbatim, so strings
// that need quoting must be passed through Q.
func (b *Builder) Table(name string, header []string, rows ...[]string) *Builder {
	b.sections = append(b.sections, &section{name: name, header: header, rows: rows, declared: -1})
	return b
}

// DeclareRows overrides the row count written into the index for a table
func (b *Builder) DeclareRows(name string, rows int) *Builder {
	for _, s := range b.sections {
		if s.name == name {
			s.declared = rows
		}
	}
	return b
}

// Q quotes a string cell
func Q(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Row is shorthand for a []string row
func Row(cells ...string) []string {
	return cells
}

func (s *section) text() string {
	var sb strings.Builder
	sb.WriteString("START_" + s.name + "\n")
	sb.WriteString(strings.Join(s.header, ",") + "\n")
	for _, r := range s.rows {
		sb.WriteString(strings.Join(r, ",") + "\n")
	}
	sb.WriteString("END_" + s.name + "\n")
	return sb.String()
}

// Bytes renders the dump file
func (b *Builder) Bytes() []byte {
	const preamble = "# fabric diagnostic dump\n# generated for tests\n"

	bodies := make([]string, len(b.sections))
	for i, s := range b.sections {
		bodies[i] = s.text() + "\n"
	}

	// offsets depend on the index length, which depends on the offsets
	index := b.index(preamble, bodies, 0)
	for i := 0; i < 8; i++ {
		next := b.index(preamble, bodies, len(index))
		if next == index {
			break
		}
		index = next
	}

	return []byte(preamble + index + strings.Join(bodies, ""))
}

func (b *Builder) index(preamble string, bodies []string, indexLen int) string {
	var sb strings.Builder
	sb.WriteString("START_INDEX_TABLE\n")
	sb.WriteString("Name,Offset,Size,Line,Rows\n")

	offset := len(preamble) + indexLen
	line := strings.Count(preamble, "\n") + 1 + 3 + len(b.sections) + 1
	for i, s := range b.sections {
		rows := len(s.rows)
		if s.declared >= 0 {
			rows = s.declared
		}
		size := len(bodies[i]) - 1 // trailing blank line is not part of the section
		fmt.Fprintf(&sb, "%s,%d,%d,%d,%d\n", s.name, offset, size, line, rows)
		offset += len(bodies[i])
		line += strings.Count(bodies[i], "\n")
	}
	sb.WriteString("END_INDEX_TABLE\n\n")
	return sb.String()
}

// WriteFile writes the dump into dir and returns its path
func (b *Builder) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	return path
}

// WriteDir writes the dump as ibdiagnet2.db_csv into a fresh temp dir
func (b *Builder) WriteDir(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	b.WriteFile(t, dir, "ibdiagnet2.db_csv")
	return dir
}

// WriteFlat writes a flat telemetry file into dir
func WriteFlat(t testing.TB, dir, name string, header []string, rows ...[]string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("# flat telemetry export\n")
	sb.WriteString(strings.Join(header, ",") + "\n")
	for _, r := range rows {
		sb.WriteString(strings.Join(r, ",") + "\n")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write flat file: %v", err)
	}
	return path
}
