package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Codec converts between Go strings and the toolchain's text encoding.
// Legacy programs commonly print in a Windows code page.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// NewCodec resolves an encoding by its WHATWG name ("utf-8", "windows-1252", ...).
func NewCodec(name string) (*Codec, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)
	return &Codec{name: canonical, enc: enc}, nil
}

// Name returns the canonical encoding name.
func (c *Codec) Name() string { return c.name }

func (c *Codec) isUTF8() bool {
	return c.enc == unicode.UTF8 || c.name == "utf-8"
}

// Encode converts source text for the compiler.
func (c *Codec) Encode(s string) ([]byte, error) {
	if c.isUTF8() {
		return []byte(s), nil
	}
	b, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding source as %s: %w", c.name, err)
	}
	return b, nil
}

// Decode converts captured bytes to text. Invalid sequences become U+FFFD.
func (c *Codec) Decode(b []byte) string {
	if c.isUTF8() {
		if utf8.Valid(b) {
			return string(b)
		}
		return strings.ToValidUTF8(string(b), "�")
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
