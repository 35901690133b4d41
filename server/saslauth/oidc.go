// Package saslauth implements SASL authentication on top of the session
// line-handler stack: mechanism servers built on go-sasl, the OIDC bearer
// token initial-response parser shared by OAUTHBEARER and XOAUTH2, and the
// continuation handler that carries a multi-step exchange.
package saslauth

import (
	"encoding/base64"
	"strings"
)

const (
	gs2NoChannelBinding = "n,"
	fieldSeparator      = "\x01"
	authPrefix          = "auth="
	bearerPrefix        = "Bearer "
	legacyUserPrefix    = "user="
	userPrefix          = "a="
)

// OIDCInitialResponse is the user/token pair carried by an OAUTHBEARER or
// XOAUTH2 initial response.
type OIDCInitialResponse struct {
	User  string
	Token string
}

// ParseOIDCInitialResponse decodes a base64 SASL initial response. It
// returns false for anything that is not valid base64 or does not carry
// exactly one user field and exactly one auth field. It never panics.
//
// Accepted payloads (after decoding):
//
//	n,a=alice,\x01host=mx\x01auth=Bearer tok\x01\x01   (OAUTHBEARER)
//	user=alice\x01auth=Bearer tok\x01\x01              (XOAUTH2)
func ParseOIDCInitialResponse(initialResponse string) (OIDCInitialResponse, bool) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimRight(initialResponse, "\r\n"))
	if err != nil {
		return OIDCInitialResponse{}, false
	}
	return parseOIDCPayload(string(decoded))
}

func parseOIDCPayload(payload string) (OIDCInitialResponse, bool) {
	payload = strings.TrimPrefix(payload, gs2NoChannelBinding)

	var users, tokens []string
	for _, field := range strings.Split(payload, fieldSeparator) {
		switch {
		case strings.HasPrefix(field, authPrefix):
			tokens = append(tokens, strings.TrimPrefix(field[len(authPrefix):], bearerPrefix))
		case strings.HasPrefix(field, legacyUserPrefix):
			users = append(users, field[len(legacyUserPrefix):])
		case strings.HasPrefix(field, userPrefix):
			// The GS2 header ends with a comma before the first separator.
			users = append(users, strings.TrimSuffix(field[len(userPrefix):], ","))
		}
	}

	if len(users) != 1 || len(tokens) != 1 {
		return OIDCInitialResponse{}, false
	}
	return OIDCInitialResponse{User: users[0], Token: tokens[0]}, true
}
