package saslauth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestParseOIDCInitialResponse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		user    string
		token   string
	}{
		{
			name:    "oauthbearer minimal",
			payload: "n,a=alice\x01auth=Bearer tok123\x01\x01",
			user:    "alice",
			token:   "tok123",
		},
		{
			name:    "oauthbearer rfc7628 gs2 header",
			payload: "n,a=user@example.com,\x01host=server.example.com\x01port=143\x01auth=Bearer vF9dft4qmTc2Nvb3RlckBhbHRhdmlzdGEuY29tCg==\x01\x01",
			user:    "user@example.com",
			token:   "vF9dft4qmTc2Nvb3RlckBhbHRhdmlzdGEuY29tCg==",
		},
		{
			name:    "xoauth2",
			payload: "user=someuser@example.com\x01auth=Bearer ya29.vF9dft4qmTc2Nvb3RlckBhdHRhdmlzdGEuY29tCg\x01\x01",
			user:    "someuser@example.com",
			token:   "ya29.vF9dft4qmTc2Nvb3RlckBhdHRhdmlzdGEuY29tCg",
		},
		{
			name:    "token without bearer scheme",
			payload: "user=bob\x01auth=opaque\x01\x01",
			user:    "bob",
			token:   "opaque",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOIDCInitialResponse(b64(tt.payload))
			require.True(t, ok)
			assert.Equal(t, tt.user, got.User)
			assert.Equal(t, tt.token, got.Token)
		})
	}
}

func TestParseOIDCInitialResponse_TrailingLineBreak(t *testing.T) {
	got, ok := ParseOIDCInitialResponse(b64("n,a=alice\x01auth=Bearer tok123\x01\x01") + "\r\n")
	require.True(t, ok)
	assert.Equal(t, OIDCInitialResponse{User: "alice", Token: "tok123"}, got)
}

func TestParseOIDCInitialResponse_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing auth":    b64("n,a=alice\x01\x01"),
		"missing user":    b64("n,\x01auth=Bearer tok\x01\x01"),
		"duplicate auth":  b64("user=alice\x01auth=Bearer a\x01auth=Bearer b\x01\x01"),
		"duplicate user":  b64("user=alice\x01user=bob\x01auth=Bearer a\x01\x01"),
		"mixed user keys": b64("n,a=alice\x01user=alice\x01auth=Bearer a\x01\x01"),
		"not base64":      "!!!not base64!!!",
		"truncated":       "bi",
		"empty":           "",
		"binary garbage":  base64.StdEncoding.EncodeToString([]byte{0xff, 0x00, 0x01, 0xfe}),
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			var (
				got OIDCInitialResponse
				ok  bool
			)
			assert.NotPanics(t, func() { got, ok = ParseOIDCInitialResponse(input) })
			assert.False(t, ok)
			assert.Equal(t, OIDCInitialResponse{}, got)
		})
	}
}
