package server

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/migadu/sora-lineproto/pkg/metrics"
)

// Sink is the byte-level side of a connection that a Transport writes to.
// Conn implements it over a net.Conn.
type Sink interface {
	// Write sends p as one unit.
	Write(p []byte) error
	// WriteStream copies r to the connection.
	WriteStream(r io.Reader) error
	// StartTLS takes the open connection over with TLS.
	StartTLS(enc *Encryption) error
	Close() error
}

// InjectionDetector is implemented by sinks that watch for commands
// pipelined into a plaintext connection ahead of a TLS takeover.
type InjectionDetector interface {
	DisableInjectionDetection()
}

// Transport performs the protocol write path for one connection.
type Transport interface {
	WriteResponse(r *Response, session *Session) error
	IsStartTLSSupported() bool
	IsTLSStarted() bool
	IsClosed() bool
	Close() error
}

// LineTransport is the Transport used by every line-oriented protocol.
// encryption is nil for plaintext-only listeners.
type LineTransport struct {
	sink       Sink
	encryption *Encryption
	tlsStarted atomic.Bool
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// NewLineTransport wraps sink. With implicit TLS the connection is treated as
// already encrypted.
func NewLineTransport(sink Sink, encryption *Encryption) *LineTransport {
	t := &LineTransport{sink: sink, encryption: encryption}
	if encryption != nil && !encryption.IsStartTLS() {
		t.tlsStarted.Store(true)
	}
	return t
}

func (t *LineTransport) IsTLSStarted() bool { return t.tlsStarted.Load() }
func (t *LineTransport) IsClosed() bool     { return t.closed.Load() }

// IsStartTLSSupported reports whether a STARTTLS takeover is possible: the
// listener offers it and the connection is still plaintext.
func (t *LineTransport) IsStartTLSSupported() bool {
	return t.encryption != nil && t.encryption.IsStartTLS() && !t.tlsStarted.Load()
}

// WriteResponse writes r and applies the state transitions it implies.
//
// A STARTTLS response on a transport that cannot upgrade fails with
// ErrStartTLSUnsupported before anything is written, and so does a stream
// response whose body was already consumed. Stream responses write
// their lines, then their body. After a successful write a STARTTLS response
// takes the connection over with TLS, clears the transaction scope, drops
// pushed line handlers and disables injection detection. An end-of-session
// response installs the discarding handler and closes the transport. None of
// these transitions happen when a write fails.
func (t *LineTransport) WriteResponse(r *Response, session *Session) error {
	if r == nil {
		return nil
	}
	protocol := session.Protocol()

	startTLS := r.RequestsStartTLS()
	if startTLS && !t.IsStartTLSSupported() {
		metrics.StartTLSTotal.WithLabelValues(protocol, "unsupported").Inc()
		session.Logger().Error("STARTTLS response written on a transport without STARTTLS support", "code", r.RetCode())
		return ErrStartTLSUnsupported
	}
	if t.closed.Load() {
		return ErrTransportClosed
	}

	header, err := session.Codec().EncodeResponse(r)
	if err != nil {
		metrics.ResponseWriteErrors.WithLabelValues(protocol, "encode").Inc()
		return err
	}

	var body io.Reader
	if r.Kind() == KindStream {
		if body, err = r.Stream(); err != nil {
			metrics.ResponseWriteErrors.WithLabelValues(protocol, "stream").Inc()
			return err
		}
	}

	if len(header) > 0 {
		if err := t.sink.Write(header); err != nil {
			return t.writeFailed(session, err)
		}
	}

	if body != nil {
		if err := t.sink.WriteStream(body); err != nil {
			return t.writeFailed(session, err)
		}
	}

	if !r.IsDisconnect() {
		metrics.ResponsesTotal.WithLabelValues(protocol, r.Kind().String()).Inc()
	}

	if startTLS {
		if err := t.startTLS(session); err != nil {
			return err
		}
	}

	if r.IsEndSession() {
		session.terminate()
		session.Logger().Debug("Session ended by response", "code", r.RetCode())
		return t.Close()
	}
	return nil
}

func (t *LineTransport) writeFailed(session *Session, err error) error {
	metrics.ResponseWriteErrors.WithLabelValues(session.Protocol(), "io").Inc()
	return fmt.Errorf("write response: %w", err)
}

func (t *LineTransport) startTLS(session *Session) error {
	protocol := session.Protocol()
	if err := t.sink.StartTLS(t.encryption); err != nil {
		metrics.StartTLSTotal.WithLabelValues(protocol, "failure").Inc()
		session.Logger().Warn("STARTTLS takeover failed", "error", err)
		t.Close()
		return fmt.Errorf("starttls: %w", err)
	}

	t.tlsStarted.Store(true)
	session.ResetState()
	if dropped := session.handlers.drain(); dropped > 0 {
		session.Logger().Debug("Dropped plaintext line handlers after STARTTLS", "count", dropped)
	}
	if d, ok := t.sink.(InjectionDetector); ok {
		d.DisableInjectionDetection()
	}

	metrics.StartTLSTotal.WithLabelValues(protocol, "success").Inc()
	session.Logger().Debug("STARTTLS negotiated")
	return nil
}

// Close closes the sink once. It is safe to call from another goroutine.
func (t *LineTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.closeErr = t.sink.Close()
	})
	return t.closeErr
}
