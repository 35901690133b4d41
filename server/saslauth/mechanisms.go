package saslauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/migadu/sora-lineproto/server"
)

// XOAuth2 is the legacy Google/Microsoft bearer token mechanism.
const XOAuth2 = "XOAUTH2"

var (
	ErrUnsupportedMechanism = errors.New("unsupported SASL mechanism")
	ErrMalformedResponse    = errors.New("malformed SASL client response")
	ErrUnexpectedResponse   = errors.New("unexpected SASL client response")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// ServerFactory creates a fresh mechanism server for one exchange.
type ServerFactory func(session *server.Session) sasl.Server

// Mechanisms is the set of SASL mechanisms a listener offers.
type Mechanisms struct {
	factories map[string]ServerFactory
}

func NewMechanisms() *Mechanisms {
	return &Mechanisms{factories: make(map[string]ServerFactory)}
}

// Register adds or replaces a mechanism. Names are case-insensitive.
func (m *Mechanisms) Register(name string, factory ServerFactory) {
	m.factories[strings.ToUpper(name)] = factory
}

// Names returns the registered mechanism names, sorted.
func (m *Mechanisms) Names() []string {
	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the server for mechanism name.
func (m *Mechanisms) New(name string, session *server.Session) (sasl.Server, error) {
	factory, ok := m.factories[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMechanism, name)
	}
	return factory(session), nil
}

// PlainAuthenticator verifies PLAIN credentials for a session.
type PlainAuthenticator func(session *server.Session, identity, username, password string) error

// Plain returns a PLAIN factory. On success the session username is set to
// the authorization identity when given, otherwise the authentication identity.
func Plain(auth PlainAuthenticator) ServerFactory {
	return func(session *server.Session) sasl.Server {
		return sasl.NewPlainServer(func(identity, username, password string) error {
			if err := auth(session, identity, username, password); err != nil {
				return err
			}
			if identity != "" {
				session.SetUsername(identity)
			} else {
				session.SetUsername(username)
			}
			return nil
		})
	}
}

// OIDCAuthenticator validates a bearer token for a user.
type OIDCAuthenticator func(session *server.Session, resp OIDCInitialResponse) error

// OAuthBearer returns an OAUTHBEARER (RFC 7628) factory.
func OAuthBearer(auth OIDCAuthenticator) ServerFactory {
	return func(session *server.Session) sasl.Server {
		return &oidcServer{session: session, auth: auth}
	}
}

// XOAuth2Mechanism returns an XOAUTH2 factory. The payload grammar is shared
// with OAUTHBEARER.
func XOAuth2Mechanism(auth OIDCAuthenticator) ServerFactory {
	return OAuthBearer(auth)
}

// oidcServer is a single-step sasl.Server for bearer token mechanisms.
type oidcServer struct {
	session *server.Session
	auth    OIDCAuthenticator
	done    bool
}

func (s *oidcServer) Next(response []byte) ([]byte, bool, error) {
	if s.done {
		return nil, true, ErrUnexpectedResponse
	}
	if response == nil {
		// No initial response: ask for one with an empty challenge.
		return []byte{}, false, nil
	}
	s.done = true

	parsed, ok := parseOIDCPayload(string(response))
	if !ok {
		return nil, true, ErrMalformedResponse
	}
	if err := s.auth(s.session, parsed); err != nil {
		return nil, true, err
	}
	s.session.SetUsername(parsed.User)
	return nil, true, nil
}
