package dump

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	indexStart  = "START_INDEX_TABLE"
	indexEnd    = "END_INDEX_TABLE"
	indexHeader = "Name,Offset,Size,Line,Rows"

	sectionStartPrefix = "START_"
	sectionEndPrefix   = "END_"

	maxLineSize = 4 << 20
)

// Entry locates one table inside a dataset file
type Entry struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	Line   int    `json:"line"`
	// Rows is the declared row count, or -1 for flat files where it is
	// only known after materialization.
	Rows int  `json:"rows"`
	Flat bool `json:"flat,omitempty"`
}

// parseIndex reads the index block at the head of an indexed dump file.
// Only the index is read; table bodies stay on disk until requested.
func parseIndex(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "stat", Err: err}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	next := func() (string, bool) {
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(decodeLatin1(bytes.TrimRight(scanner.Bytes(), "\r")))
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			return text, true
		}
		return "", false
	}

	text, ok := next()
	if !ok || text != indexStart {
		return nil, &FormatError{Path: path, Line: line, Reason: "missing " + indexStart}
	}

	text, ok = next()
	if !ok || text != indexHeader {
		return nil, &FormatError{Path: path, Line: line, Reason: fmt.Sprintf("unexpected index header %q", text)}
	}

	var entries []Entry
	seen := make(map[string]struct{})
	for {
		text, ok = next()
		if !ok {
			if err := scanner.Err(); err != nil {
				return nil, &FormatError{Path: path, Line: line, Reason: "read index", Err: err}
			}
			return nil, &FormatError{Path: path, Line: line, Reason: "missing " + indexEnd}
		}
		if text == indexEnd {
			break
		}

		entry, err := parseIndexLine(text)
		if err != nil {
			return nil, &FormatError{Path: path, Line: line, Reason: "bad index entry", Err: err}
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, &FormatError{Path: path, Line: line, Reason: fmt.Sprintf("table %s indexed twice", entry.Name)}
		}
		if entry.Offset+entry.Size > info.Size() {
			return nil, &FormatError{Path: path, Line: line, Table: entry.Name, Reason: "section extends past end of file"}
		}
		seen[entry.Name] = struct{}{}
		entry.File = path
		entries = append(entries, entry)
	}

	return entries, nil
}

func parseIndexLine(text string) (Entry, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 5 {
		return Entry{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	name := strings.TrimSpace(fields[0])
	if name == "" {
		return Entry{}, fmt.Errorf("empty table name")
	}

	nums := make([]int64, 4)
	for i, f := range fields[1:] {
		n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		if n < 0 {
			return Entry{}, fmt.Errorf("field %d: negative value %d", i+2, n)
		}
		nums[i] = n
	}

	return Entry{
		Name:   name,
		Offset: nums[0],
		Size:   nums[1],
		Line:   int(nums[2]),
		Rows:   int(nums[3]),
	}, nil
}
