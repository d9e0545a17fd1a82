package goftp

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// PathCharset is the charset the FTP protocol mandates for path names. Names
// are carried byte-for-byte in it, so the bytes a name was encoded to locally
// are exactly the bytes the server sees.
const PathCharset = "ISO-8859-1"

func normalizeCharset(name string) string {
	n := strings.ToUpper(strings.ReplaceAll(name, "_", "-"))
	switch n {
	case "", "UTF8":
		return "UTF-8"
	case "LATIN1", "LATIN-1", "ISO8859-1":
		return PathCharset
	}
	return n
}

func lookupCharset(name string) (encoding.Encoding, error) {
	switch normalizeCharset(name) {
	case "UTF-8":
		return unicode.UTF8, nil
	case PathCharset:
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// Transcode converts text from the source charset to the target charset.
// It performs no I/O.
func Transcode(text []byte, from, to string) ([]byte, error) {
	src, err := lookupCharset(from)
	if err != nil {
		return nil, err
	}
	dst, err := lookupCharset(to)
	if err != nil {
		return nil, err
	}
	if normalizeCharset(from) == normalizeCharset(to) {
		return append([]byte(nil), text...), nil
	}

	t := transform.Chain(src.NewDecoder(), dst.NewEncoder())
	out, _, err := transform.Bytes(t, text)
	if err != nil {
		return nil, fmt.Errorf("transcode %s to %s: %w", from, to, err)
	}
	return out, nil
}

// EncodeName encodes a UTF-8 file or directory name into the wire bytes the
// server expects: the name in the configured local charset, carried as
// ISO-8859-1 code units.
func EncodeName(name, charset string) (string, error) {
	b, err := Transcode([]byte(name), "UTF-8", charset)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodePath collapses doubled separators and encodes the whole path.
func encodePath(p, charset string) (string, error) {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return EncodeName(p, charset)
}

func joinRemote(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// DecodeName is the inverse of EncodeName: it turns a name as listed by the
// server back into UTF-8.
func DecodeName(name, charset string) (string, error) {
	b, err := Transcode([]byte(name), charset, "UTF-8")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
