package server

import (
	"errors"
	"testing"

	"github.com/migadu/sora-lineproto/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHelloName(t *testing.T) {
	assert.Equal(t, "mx1.example.com", ResolveHelloName(func() (string, error) {
		return "mx1.example.com", nil
	}))
	assert.Equal(t, FallbackHelloName, ResolveHelloName(func() (string, error) {
		return "", errors.New("no hostname")
	}))
	assert.Equal(t, FallbackHelloName, ResolveHelloName(func() (string, error) {
		return "", nil
	}))
	assert.NotEmpty(t, ResolveHelloName(nil))
}

func TestNewProtocolSettings_Defaults(t *testing.T) {
	cfg := config.ProtocolServerConfig{Name: "smtp-submission", Protocol: "smtp", Addr: ":587"}
	p := NewProtocolSettings(cfg, "mx1.example.com")

	assert.Equal(t, "smtp", p.Protocol())
	assert.Equal(t, "mx1.example.com", p.HelloName())
	assert.Equal(t, config.DefaultSoftwareName, p.SoftwareName())
	assert.Equal(t, "mx1.example.com sora service ready", p.Greeting())
	assert.Equal(t, config.DefaultMaxLineLength, p.MaxLineLength())

	codec, err := p.Codec()
	require.NoError(t, err)
	assert.Equal(t, "US-ASCII", codec.Charset())
	assert.Equal(t, "\r\n", codec.Delimiter())
}

func TestNewProtocolSettings_Overrides(t *testing.T) {
	cfg := config.ProtocolServerConfig{
		Name:          "imap",
		Protocol:      "imap",
		HelloName:     "imap.example.com",
		SoftwareName:  "Sora IMAP",
		Greeting:      "IMAP4rev1 ready",
		Charset:       "ISO-8859-1",
		LineDelimiter: "lf",
		MaxLineLength: 65536,
	}
	p := NewProtocolSettings(cfg, "ignored.example.com")

	assert.Equal(t, "imap.example.com", p.HelloName())
	assert.Equal(t, "Sora IMAP", p.SoftwareName())
	assert.Equal(t, "IMAP4rev1 ready", p.Greeting())
	assert.Equal(t, 65536, p.MaxLineLength())

	codec, err := p.Codec()
	require.NoError(t, err)
	assert.Equal(t, "\n", codec.Delimiter())

	var _ ProtocolConfig = p
}

func TestNewProtocolSettings_EmptyHelloName(t *testing.T) {
	p := NewProtocolSettings(config.ProtocolServerConfig{Protocol: "pop3"}, "")
	assert.Equal(t, FallbackHelloName, p.HelloName())
}
