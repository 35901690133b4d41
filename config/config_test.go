package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolServerConfig_Defaults(t *testing.T) {
	srv := ProtocolServerConfig{Name: "smtp", Protocol: "smtp"}

	assert.Equal(t, "US-ASCII", srv.GetCharset())
	assert.Equal(t, "\r\n", srv.GetLineDelimiter())
	assert.Equal(t, DefaultMaxLineLength, srv.GetMaxLineLength())
	assert.Equal(t, "sora", srv.GetSoftwareName())
	assert.Equal(t, "mx.example.com sora service ready", srv.GetGreeting("mx.example.com"))

	timeout, err := srv.ProxyProtocol.GetProxyTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestProxyProtocolConfig_GetProxyTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
		want    time.Duration
		wantErr bool
	}{
		{name: "default", timeout: "", want: 5 * time.Second},
		{name: "milliseconds", timeout: "750ms", want: 750 * time.Millisecond},
		{name: "minutes", timeout: "2m", want: 2 * time.Minute},
		{name: "garbage", timeout: "soon", wantErr: true},
		{name: "zero", timeout: "0s", wantErr: true},
		{name: "negative", timeout: "-1s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ProxyProtocolConfig{Timeout: tt.timeout}
			got, err := p.GetProxyTimeout()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_RejectsBadProxyTimeout(t *testing.T) {
	srv := ProtocolServerConfig{
		Name:     "imap",
		Protocol: "imap",
		ProxyProtocol: ProxyProtocolConfig{
			Enabled: true,
			Timeout: "five seconds",
		},
	}
	err := srv.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `server "imap"`)

	// Disabled sections are not checked.
	srv.ProxyProtocol.Enabled = false
	assert.NoError(t, srv.Validate())
}

func TestProtocolServerConfig_Overrides(t *testing.T) {
	srv := ProtocolServerConfig{
		Name:          "lmtp",
		Protocol:      "lmtp",
		Greeting:      "LMTP at your service",
		SoftwareName:  "sora-lmtp",
		Charset:       "UTF-8",
		LineDelimiter: "LF",
		MaxLineLength: 1000,
	}

	assert.Equal(t, "UTF-8", srv.GetCharset())
	assert.Equal(t, "\n", srv.GetLineDelimiter())
	assert.Equal(t, 1000, srv.GetMaxLineLength())
	assert.Equal(t, "sora-lmtp", srv.GetSoftwareName())
	assert.Equal(t, "LMTP at your service", srv.GetGreeting("ignored"))
}

func TestTLSConfig_HasCertificateSource(t *testing.T) {
	assert.False(t, (&TLSConfig{}).HasCertificateSource())
	assert.False(t, (&TLSConfig{CertFile: "c.pem"}).HasCertificateSource())
	assert.True(t, (&TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}).HasCertificateSource())
	assert.True(t, (&TLSConfig{LetsEncrypt: &TLSLetsEncryptConfig{Domains: []string{"mx.example.com"}}}).HasCertificateSource())
}

func TestNewDefaultConfig_Validates(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	srv, ok := cfg.Server("smtp")
	require.True(t, ok)
	assert.Equal(t, ":25", srv.Addr)

	_, ok = cfg.Server("imap")
	assert.False(t, ok)
}
