package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLineCodec(t *testing.T) {
	c := DefaultLineCodec()
	assert.Equal(t, "US-ASCII", c.Charset())
	assert.Equal(t, "\r\n", c.Delimiter())

	s, err := c.DecodeLine([]byte("NOOP"))
	require.NoError(t, err)
	assert.Equal(t, "NOOP", s)
}

func TestLineCodec_Latin1(t *testing.T) {
	c, err := NewLineCodec("ISO-8859-1", "\r\n")
	require.NoError(t, err)

	s, err := c.DecodeLine([]byte("MAIL FROM:<j\xf6rg@example.de>"))
	require.NoError(t, err)
	assert.Equal(t, "MAIL FROM:<jörg@example.de>", s)

	r, _ := NewResponse("250", "250 Grüße")
	out, err := c.EncodeResponse(r)
	require.NoError(t, err)
	assert.Equal(t, "250 Gr\xfc\xdfe\r\n", string(out))
}

func TestLineCodec_PassThroughCharsets(t *testing.T) {
	for _, cs := range []string{"", "US-ASCII", "ascii", "UTF-8", "utf8"} {
		c, err := NewLineCodec(cs, "\n")
		require.NoError(t, err, cs)
		s, err := c.DecodeLine([]byte("a1 SELECT \"Entwürfe\""))
		require.NoError(t, err)
		assert.Equal(t, "a1 SELECT \"Entwürfe\"", s)
	}
}

func TestLineCodec_Errors(t *testing.T) {
	_, err := NewLineCodec("X-NOT-A-CHARSET", "\r\n")
	assert.ErrorIs(t, err, ErrUnsupportedCharset)

	_, err = NewLineCodec("UTF-8", "")
	assert.Error(t, err)
}

func TestLineCodec_DisconnectEncodesNothing(t *testing.T) {
	c, err := NewLineCodec("ISO-8859-1", "\r\n")
	require.NoError(t, err)
	out, err := c.EncodeResponse(DisconnectResponse())
	require.NoError(t, err)
	assert.Empty(t, out)
}
