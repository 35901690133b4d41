package server

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

var (
	// ErrStartTLSUnsupported is returned by WriteResponse when a STARTTLS
	// response is written on a transport that cannot upgrade. Nothing is
	// written to the connection when it is returned.
	ErrStartTLSUnsupported = errors.New("starttls is not supported on this transport")

	ErrTransportClosed       = errors.New("transport closed")
	ErrEmptyRetCode          = errors.New("response code must not be empty")
	ErrResponseImmutable     = errors.New("response is immutable")
	ErrStreamConsumed        = errors.New("response stream already consumed")
	ErrNilStream             = errors.New("stream response body must not be nil")
	ErrEmptyAttachmentName   = errors.New("attachment key name must not be empty")
	ErrLineHandlerStackEmpty = errors.New("no line handler pushed")
	ErrLineTooLong           = errors.New("line exceeds maximum length")
	ErrNilTLSConfig          = errors.New("tls config must not be nil")
	ErrUnknownCipherSuite    = errors.New("unknown cipher suite")
	ErrUnsupportedCharset    = errors.New("unsupported charset")
	ErrInvalidProxyHeader    = errors.New("invalid PROXY protocol header")
)

// IsConnectionError checks if an error is a common, non-fatal network connection error.
// Such errors end a session quietly instead of being reported as failures.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, ErrTransportClosed) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			strings.Contains(opErr.Err.Error(), "use of closed network connection") {
			return true
		}
	}

	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) {
		if errors.Is(syscallErr.Err, syscall.ECONNRESET) || errors.Is(syscallErr.Err, syscall.EPIPE) {
			return true
		}
	}

	var recordErr tls.RecordHeaderError
	return errors.As(err, &recordErr)
}
