package server

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// LineCodec converts between wire bytes and the strings handed to command
// handlers, using the session charset and line delimiter.
type LineCodec struct {
	charset   string
	delimiter string
	enc       encoding.Encoding // nil when wire bytes are used as-is
}

// DefaultLineCodec is US-ASCII with CRLF delimiters.
func DefaultLineCodec() *LineCodec {
	return &LineCodec{charset: "US-ASCII", delimiter: "\r\n"}
}

// NewLineCodec resolves charset through the IANA registry. US-ASCII and
// UTF-8 pass bytes through unchanged.
func NewLineCodec(charset, delimiter string) (*LineCodec, error) {
	if delimiter == "" {
		return nil, fmt.Errorf("empty line delimiter")
	}
	c := &LineCodec{charset: charset, delimiter: delimiter}
	switch strings.ToUpper(charset) {
	case "", "US-ASCII", "ASCII", "UTF-8", "UTF8":
		return c, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCharset, charset)
	}
	c.enc = enc
	return c, nil
}

func (c *LineCodec) Charset() string   { return c.charset }
func (c *LineCodec) Delimiter() string { return c.delimiter }

// DecodeLine converts one inbound line to a UTF-8 string.
func (c *LineCodec) DecodeLine(line []byte) (string, error) {
	if c.enc == nil {
		return string(line), nil
	}
	out, err := c.enc.NewDecoder().Bytes(line)
	if err != nil {
		return "", fmt.Errorf("decode %s line: %w", c.charset, err)
	}
	return string(out), nil
}

// EncodeResponse renders r's lines in the session charset, each followed by
// the delimiter.
func (c *LineCodec) EncodeResponse(r *Response) ([]byte, error) {
	data := r.Encode(c.delimiter)
	if c.enc == nil || len(data) == 0 {
		return data, nil
	}
	out, err := c.enc.NewEncoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", c.charset, err)
	}
	return out, nil
}
