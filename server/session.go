package server

import (
	"log/slog"
	"net"

	"github.com/migadu/sora-lineproto/logger"
	"github.com/migadu/sora-lineproto/pkg/metrics"
	"github.com/migadu/sora-lineproto/server/idgen"
)

// SessionOptions describes the connection a Session is created for.
type SessionOptions struct {
	Protocol   string // Protocol name for logging/metrics, e.g. "smtp"
	RemoteAddr net.Addr
	LocalAddr  net.Addr
	Proxy      *ProxyInformation // Set when the connection came through a PROXY header
	Config     ProtocolConfig
	Codec      *LineCodec // Defaults to US-ASCII with CRLF
}

// Session is the per-connection protocol state: two attachment scopes, the
// line-handler stack and the transport used to answer the client.
//
// A Session is not safe for concurrent use. Commands, state changes and
// response writes for one connection must be serialized by the caller; Serve
// does this by handling one line at a time.
type Session struct {
	id         string
	protocol   string
	remoteAddr net.Addr
	localAddr  net.Addr
	proxy      *ProxyInformation
	username   string

	connection  attachments
	transaction attachments
	handlers    lineHandlerStack

	transport Transport
	config    ProtocolConfig
	codec     *LineCodec
	log       *slog.Logger
}

// NewSession creates the Session for a freshly accepted connection.
func NewSession(transport Transport, opts SessionOptions) *Session {
	protocol := opts.Protocol
	if protocol == "" {
		protocol = "unknown"
	}
	codec := opts.Codec
	if codec == nil {
		codec = DefaultLineCodec()
	}

	s := &Session{
		id:          idgen.New(),
		protocol:    protocol,
		remoteAddr:  opts.RemoteAddr,
		localAddr:   opts.LocalAddr,
		proxy:       opts.Proxy,
		connection:  make(attachments),
		transaction: make(attachments),
		transport:   transport,
		config:      opts.Config,
		codec:       codec,
	}

	attrs := []any{"protocol", protocol, "session", s.id, "remote", addrString(s.RemoteAddr())}
	if opts.Proxy != nil {
		attrs = append(attrs, "proxy", addrString(opts.RemoteAddr))
	}
	s.log = logger.With(attrs...)

	metrics.SessionsTotal.WithLabelValues(protocol).Inc()
	return s
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Protocol() string         { return s.protocol }
func (s *Session) LocalAddr() net.Addr      { return s.localAddr }
func (s *Session) Proxy() *ProxyInformation { return s.proxy }
func (s *Session) Config() ProtocolConfig   { return s.config }
func (s *Session) Codec() *LineCodec        { return s.codec }
func (s *Session) Transport() Transport     { return s.transport }
func (s *Session) Logger() *slog.Logger     { return s.log }

// RemoteAddr returns the client address: the proxied source when the
// connection came through a trusted proxy, otherwise the peer address.
func (s *Session) RemoteAddr() net.Addr {
	if s.proxy != nil && s.proxy.source != nil {
		return s.proxy.Source()
	}
	return s.remoteAddr
}

// Username returns the authenticated user, or "" before authentication.
func (s *Session) Username() string { return s.username }

func (s *Session) SetUsername(username string) {
	s.username = username
	s.log = s.log.With("user", username)
}

// ResetState clears the transaction scope. Connection attachments survive.
func (s *Session) ResetState() {
	clear(s.transaction)
}

// PushLineHandler installs h ahead of command parsing.
func (s *Session) PushLineHandler(h LineHandler) {
	s.handlers.push(h)
	metrics.LineHandlerPushesTotal.WithLabelValues(s.protocol).Inc()
}

// PopLineHandler removes the most recently pushed handler. Popping an empty
// stack is a caller error and leaves the stack unchanged.
func (s *Session) PopLineHandler() error {
	_, err := s.handlers.pop()
	if err != nil {
		s.log.Warn("Line handler pop without matching push")
	}
	return err
}

// TopLineHandler returns the handler that receives the next line, or nil.
func (s *Session) TopLineHandler() LineHandler {
	return s.handlers.top()
}

// PushedLineHandlerCount reports the current stack depth.
func (s *Session) PushedLineHandlerCount() int {
	return s.handlers.depth()
}

// WriteResponse hands r to the transport.
func (s *Session) WriteResponse(r *Response) error {
	return s.transport.WriteResponse(r, s)
}

// IsTLSStarted reports whether the connection is encrypted.
func (s *Session) IsTLSStarted() bool {
	return s.transport.IsTLSStarted()
}

// IsStartTLSSupported reports whether a STARTTLS response may be written now.
func (s *Session) IsStartTLSSupported() bool {
	return s.transport.IsStartTLSSupported()
}

// HandleLine routes a raw input line to the top line handler, or decodes it
// and passes it to commands when no handler is pushed.
func (s *Session) HandleLine(line []byte, commands CommandHandler) *Response {
	if h := s.handlers.top(); h != nil {
		return h.OnLine(s, line)
	}

	text, err := s.codec.DecodeLine(line)
	if err != nil {
		s.log.Warn("Undecodable command line", "charset", s.codec.Charset(), "error", err)
		if bad, ok := commands.(MalformedLineHandler); ok {
			return bad.HandleMalformedLine(s, err)
		}
		return nil
	}

	s.log.Debug("Client command", "line", MaskSensitive(text))
	return commands.HandleCommand(s, text)
}

// terminate drops pushed handlers and installs the discarding handler so
// no further input reaches command parsing.
func (s *Session) terminate() {
	s.handlers.drain()
	s.handlers.push(discardHandler{})
}

func (s *Session) discardedLine(line []byte) {
	metrics.LinesDiscardedTotal.WithLabelValues(s.protocol).Inc()
	s.log.Debug("Discarding input after end of session", "bytes", len(line), "line", MaskSensitive(string(line)))
}
