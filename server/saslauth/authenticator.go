package saslauth

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/migadu/sora-lineproto/pkg/metrics"
	"github.com/migadu/sora-lineproto/server"
)

// Responder renders the protocol-specific replies of a SASL exchange, such
// as "334 <challenge>" for SMTP or "+ <challenge>" for IMAP.
type Responder interface {
	Challenge(session *server.Session, challenge string) *server.Response
	Success(session *server.Session) *server.Response
	Failure(session *server.Session, err error) *server.Response
	Aborted(session *server.Session) *server.Response
}

// Authenticator runs SASL exchanges. Each step after the first is read by a
// line handler pushed on the session, so continuation lines never reach the
// command parser; the handler pops itself when the exchange ends.
type Authenticator struct {
	mechanisms *Mechanisms
	responder  Responder
}

func NewAuthenticator(mechanisms *Mechanisms, responder Responder) *Authenticator {
	return &Authenticator{mechanisms: mechanisms, responder: responder}
}

// Mechanisms returns the offered mechanisms.
func (a *Authenticator) Mechanisms() *Mechanisms { return a.mechanisms }

// Begin starts an exchange. initialResponse is the base64 text sent with the
// command, "=" for an empty initial response, or "" when none was sent.
func (a *Authenticator) Begin(session *server.Session, mechanism, initialResponse string) *server.Response {
	mechanism = strings.ToUpper(mechanism)
	srv, err := a.mechanisms.New(mechanism, session)
	if err != nil {
		metrics.SASLAuthenticationsTotal.WithLabelValues(mechanism, "unsupported").Inc()
		return a.responder.Failure(session, err)
	}

	var ir []byte
	switch initialResponse {
	case "":
	case "=":
		ir = []byte{}
	default:
		ir, err = decodeClientLine(initialResponse)
		if err != nil {
			metrics.SASLAuthenticationsTotal.WithLabelValues(mechanism, "malformed").Inc()
			return a.responder.Failure(session, err)
		}
	}

	ex := &exchange{auth: a, mechanism: mechanism, server: srv}
	return ex.step(session, ir)
}

func decodeClientLine(line string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return nil, ErrMalformedResponse
	}
	return decoded, nil
}

// exchange is one in-flight SASL negotiation. While it waits for a client
// response it sits on the session line-handler stack.
type exchange struct {
	auth      *Authenticator
	mechanism string
	server    sasl.Server
	pushed    bool
}

func (ex *exchange) step(session *server.Session, response []byte) *server.Response {
	challenge, done, err := ex.server.Next(response)
	if err != nil {
		ex.finish(session)
		metrics.SASLAuthenticationsTotal.WithLabelValues(ex.mechanism, "failure").Inc()
		session.Logger().Info("SASL authentication failed", "mechanism", ex.mechanism, "error", err)
		return ex.auth.responder.Failure(session, err)
	}
	if done {
		ex.finish(session)
		metrics.SASLAuthenticationsTotal.WithLabelValues(ex.mechanism, "success").Inc()
		session.Logger().Info("SASL authentication successful", "mechanism", ex.mechanism, "user", session.Username())
		return ex.auth.responder.Success(session)
	}

	if !ex.pushed {
		session.PushLineHandler(ex)
		ex.pushed = true
	}
	return ex.auth.responder.Challenge(session, base64.StdEncoding.EncodeToString(challenge))
}

func (ex *exchange) finish(session *server.Session) {
	if !ex.pushed {
		return
	}
	ex.pushed = false
	// The stack may have been drained under us (STARTTLS) and refilled.
	if session.TopLineHandler() != server.LineHandler(ex) {
		session.Logger().Debug("SASL exchange no longer on top of the stack", "mechanism", ex.mechanism)
		return
	}
	if err := session.PopLineHandler(); err != nil {
		session.Logger().Debug("SASL exchange pop failed", "mechanism", ex.mechanism, "error", err)
	}
}

// OnLine receives the client's answer to a challenge.
func (ex *exchange) OnLine(session *server.Session, line []byte) *server.Response {
	text := strings.TrimSpace(string(line))
	if text == "*" {
		ex.finish(session)
		metrics.SASLAuthenticationsTotal.WithLabelValues(ex.mechanism, "aborted").Inc()
		return ex.auth.responder.Aborted(session)
	}

	response, err := decodeClientLine(text)
	if err != nil {
		ex.finish(session)
		metrics.SASLAuthenticationsTotal.WithLabelValues(ex.mechanism, "malformed").Inc()
		return ex.auth.responder.Failure(session, err)
	}
	return ex.step(session, response)
}

// IsMalformed reports whether err came from an undecodable client response.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
