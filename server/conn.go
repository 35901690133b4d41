package server

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/migadu/sora-lineproto/logger"
	"github.com/migadu/sora-lineproto/pkg/metrics"
)

// HandshakeTimeout bounds a STARTTLS handshake.
const HandshakeTimeout = 30 * time.Second

// ConnConfig holds configuration for creating a Conn
type ConnConfig struct {
	Protocol      string // Protocol name for logging/metrics
	Delimiter     string // Line delimiter, default CRLF
	MaxLineLength int    // 0 = DefaultMaxLineLength
}

// DefaultMaxLineLength applies when ConnConfig.MaxLineLength is zero.
const DefaultMaxLineLength = 8192

// Conn frames a net.Conn into delimiter-terminated lines and implements
// Sink for LineTransport, including STARTTLS takeover.
//
// Reads, writes and StartTLS belong to the serving goroutine. Close may be
// called from any goroutine; mu guards conn and closed for that case.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool

	reader        *bufio.Reader
	writer        *bufio.Writer
	delimiter     []byte
	maxLineLength int
	protocol      string

	detectInjection bool
}

// NewConn wraps c. Injection detection starts enabled.
func NewConn(c net.Conn, cfg ConnConfig) *Conn {
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\r\n"
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = DefaultMaxLineLength
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "unknown"
	}
	return &Conn{
		conn:            c,
		reader:          bufio.NewReader(c),
		writer:          bufio.NewWriter(c),
		delimiter:       []byte(cfg.Delimiter),
		maxLineLength:   cfg.MaxLineLength,
		protocol:        cfg.Protocol,
		detectInjection: true,
	}
}

// NetConn returns the current underlying connection (a *tls.Conn after STARTTLS).
func (c *Conn) NetConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Conn) RemoteAddr() net.Addr { return c.NetConn().RemoteAddr() }
func (c *Conn) LocalAddr() net.Addr  { return c.NetConn().LocalAddr() }

// ReadLine returns the next line without its delimiter. A line longer than
// the maximum is consumed up to its delimiter and reported as ErrLineTooLong.
func (c *Conn) ReadLine() ([]byte, error) {
	last := c.delimiter[len(c.delimiter)-1]
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := c.reader.ReadSlice(last)
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			err = nil
		} else if err != nil {
			return nil, err
		} else if bytes.HasSuffix(line, c.delimiter) {
			if tooLong || len(line)-len(c.delimiter) > c.maxLineLength {
				return nil, ErrLineTooLong
			}
			return line[:len(line)-len(c.delimiter)], nil
		}

		if len(line) > c.maxLineLength+len(c.delimiter) {
			tooLong = true
			// Keep only a tail long enough to recognise the delimiter.
			keep := len(c.delimiter) - 1
			line = append(line[:0], line[len(line)-keep:]...)
		}
	}
}

// ReadProxyHeader consumes a PROXY v1 header line when the peer is one of
// trusted. Untrusted peers are not read from and yield nil information.
func (c *Conn) ReadProxyHeader(trusted []*net.IPNet, timeout time.Duration) (*ProxyInformation, error) {
	conn := c.NetConn()
	if !IsTrustedAddr(conn.RemoteAddr(), trusted) {
		return nil, nil
	}
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	peek, err := c.reader.Peek(5)
	if err != nil {
		return nil, fmt.Errorf("failed to peek for PROXY header: %w", err)
	}
	if string(peek) != "PROXY" {
		return nil, nil
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read PROXY header: %w", err)
	}
	return ParseProxyV1Header(line)
}

// Write sends p and flushes it.
func (c *Conn) Write(p []byte) error {
	if _, err := c.writer.Write(p); err != nil {
		return err
	}
	return c.writer.Flush()
}

// WriteStream copies r to the connection and flushes it.
func (c *Conn) WriteStream(r io.Reader) error {
	if _, err := c.writer.ReadFrom(r); err != nil {
		return err
	}
	return c.writer.Flush()
}

// StartTLS runs the server side of a TLS handshake on the open connection.
// Plaintext already buffered at this point was sent before the client could
// have seen the STARTTLS reply; it is discarded and, while detection is on,
// reported as a command injection attempt.
func (c *Conn) StartTLS(enc *Encryption) error {
	if enc == nil {
		return ErrStartTLSUnsupported
	}
	raw := c.NetConn()
	if n := c.reader.Buffered(); n > 0 {
		if c.detectInjection {
			logger.Warn("Discarding plaintext pipelined ahead of TLS takeover", "protocol", c.protocol,
				"remote", addrString(raw.RemoteAddr()), "bytes", n)
			metrics.CommandInjectionTotal.WithLabelValues(c.protocol).Inc()
		}
		c.reader.Discard(n)
	}

	tlsConn := tls.Server(raw, enc.ServerConfig())
	if err := raw.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return err
	}
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}
	if err := raw.SetDeadline(time.Time{}); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Close ran during the handshake and already shut the raw conn.
		c.mu.Unlock()
		tlsConn.Close()
		return net.ErrClosed
	}
	c.conn = tlsConn
	c.mu.Unlock()

	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)
	return nil
}

// DisableInjectionDetection stops reporting pipelined plaintext.
func (c *Conn) DisableInjectionDetection() {
	c.detectInjection = false
}

// Close closes the current connection. It is safe to call concurrently with
// StartTLS; later calls return net.ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.closed = true
	return c.conn.Close()
}
