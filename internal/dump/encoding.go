package dump

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Dumps are written in a single-byte code page. ISO-8859-1 maps every byte
// to exactly one rune, so decode followed by encode reproduces the source.
var codepage = charmap.ISO8859_1

// latin1Reader decodes a single-byte stream into UTF-8 for the CSV reader
func latin1Reader(r io.Reader) io.Reader {
	return codepage.NewDecoder().Reader(r)
}

// decodeLatin1 converts raw bytes into a UTF-8 string
func decodeLatin1(b []byte) string {
	buf := make([]byte, 0, len(b)+len(b)/4)
	for _, c := range b {
		buf = utf8.AppendRune(buf, codepage.DecodeByte(c))
	}
	return string(buf)
}

// encodeLatin1 converts a decoded value back into its source bytes
func encodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := codepage.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}
