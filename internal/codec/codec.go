// Package codec renders analysis results for files, terminals, and the API.
package codec

import (
	"fmt"
	"io"
	"strings"

	"fabriclens/internal/report"
)

// Importer reads a result previously written by an Exporter
type Importer interface {
	Parse(r io.Reader) (*report.Result, error)
	Format() string
}

// Exporter writes a result in one format
type Exporter interface {
	Export(result *report.Result, w io.Writer) error
	Format() string
}

// Formats lists the supported export formats
func Formats() []string {
	return []string{"json", "yaml", "text"}
}

// ForFormat returns the exporter for a format name
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "text", "txt":
		return NewTextCodec(), nil
	}
	return nil, fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats(), ", "))
}
