package server

import (
	"context"
	"errors"

	"github.com/migadu/sora-lineproto/pkg/metrics"
)

// LineSource yields inbound lines without their delimiter. Conn implements it.
type LineSource interface {
	ReadLine() ([]byte, error)
}

// CommandHandler parses and executes one command line. It is the entry
// point of a concrete protocol (SMTP, IMAP, POP3, ManageSieve).
type CommandHandler interface {
	HandleCommand(session *Session, line string) *Response
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(session *Session, line string) *Response

func (f CommandHandlerFunc) HandleCommand(session *Session, line string) *Response {
	return f(session, line)
}

// MalformedLineHandler is optionally implemented by a CommandHandler to
// answer lines that cannot be decoded in the session charset.
type MalformedLineHandler interface {
	HandleMalformedLine(session *Session, err error) *Response
}

// LineTooLongHandler is optionally implemented by a CommandHandler to answer
// over-long lines. Without it such a line ends the session.
type LineTooLongHandler interface {
	HandleLineTooLong(session *Session) *Response
}

// Serve runs the read-dispatch-write loop for one connection until the
// source is exhausted, the context ends or a fatal error occurs. Lines are
// handled one at a time, which serializes every access to the session.
//
// Once an end-of-session response has been written, lines that were already
// buffered keep flowing into the discarding handler and never reach commands.
// A STARTTLS response on a transport without STARTTLS support is returned as
// ErrStartTLSUnsupported and ends the loop.
func Serve(ctx context.Context, session *Session, source LineSource, commands CommandHandler) error {
	protocol := session.Protocol()
	metrics.SessionsCurrent.WithLabelValues(protocol).Inc()
	defer metrics.SessionsCurrent.WithLabelValues(protocol).Dec()

	transport := session.Transport()
	stop := context.AfterFunc(ctx, func() {
		transport.Close()
	})
	defer stop()

	for {
		line, err := source.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) && !transport.IsClosed() {
				if err := handleLineTooLong(session, commands); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if transport.IsClosed() || IsConnectionError(err) {
				session.Logger().Debug("Connection finished", "reason", err)
				return nil
			}
			session.Logger().Warn("Read error", "error", err)
			return err
		}

		resp := session.HandleLine(line, commands)
		if resp == nil {
			continue
		}
		if err := session.WriteResponse(resp); err != nil {
			if errors.Is(err, ErrStartTLSUnsupported) {
				return err
			}
			if IsConnectionError(err) {
				session.Logger().Debug("Connection finished during write", "reason", err)
				return nil
			}
			session.Logger().Warn("Write error", "error", err)
			return err
		}
	}
}

func handleLineTooLong(session *Session, commands CommandHandler) error {
	if h, ok := commands.(LineTooLongHandler); ok {
		if resp := h.HandleLineTooLong(session); resp != nil {
			return session.WriteResponse(resp)
		}
		return nil
	}
	session.Logger().Warn("Line too long, closing session")
	return session.WriteResponse(DisconnectResponse())
}
