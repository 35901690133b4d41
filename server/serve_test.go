package server

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays lines, then reports io.EOF.
type scriptedSource struct {
	lines []string
	errs  map[int]error
	pos   int
}

func (s *scriptedSource) ReadLine() ([]byte, error) {
	if err, ok := s.errs[s.pos]; ok {
		delete(s.errs, s.pos)
		return nil, err
	}
	if s.pos >= len(s.lines) {
		return nil, io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return []byte(line), nil
}

// bufferSink collects written bytes.
type bufferSink struct {
	mu     sync.Mutex
	out    strings.Builder
	closed bool
}

func (b *bufferSink) Write(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return io.ErrClosedPipe
	}
	b.out.Write(p)
	return nil
}

func (b *bufferSink) WriteStream(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return b.Write(data)
}

func (b *bufferSink) StartTLS(*Encryption) error { return nil }

func (b *bufferSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *bufferSink) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// miniSMTP is a tiny command handler used to drive Serve.
type miniSMTP struct {
	seen []string
}

func (m *miniSMTP) HandleCommand(s *Session, line string) *Response {
	m.seen = append(m.seen, line)
	verb, arg, _ := strings.Cut(line, " ")
	switch strings.ToUpper(verb) {
	case "MAIL":
		SetAttachment(s, senderKey, arg, ScopeTransaction)
		r, _ := NewResponse("250", "250 2.1.0 Ok")
		return r
	case "DATA":
		s.PushLineHandler(NewDataLineHandler(0, func(s *Session, data []byte, _ bool) *Response {
			r, _ := NewResponse("250", "250 2.0.0 Queued "+strings.TrimSpace(string(data)))
			return r
		}))
		r, _ := NewResponse("354", "354 End data with <CR><LF>.<CR><LF>")
		return r
	case "STARTTLS":
		r, _ := NewStartTLSResponse("220", "220 2.0.0 Ready to start TLS")
		return r
	case "QUIT":
		r, _ := NewResponse("221", "221 2.0.0 Bye")
		r.SetEndSession(true)
		return r
	case "NOOP":
		r, _ := NewResponse("250", "250 2.0.0 Ok")
		return r
	}
	r, _ := NewResponse("500", "500 5.5.2 Error: command not recognized")
	return r
}

func TestServe_LinesAfterQuitAreDiscarded(t *testing.T) {
	sink := &bufferSink{}
	session, transport := newTestSession(t, sink, nil)
	commands := &miniSMTP{}
	source := &scriptedSource{lines: []string{"NOOP", "QUIT", "MAIL FROM:<evil@example.com>", "NOOP"}}

	require.NoError(t, Serve(context.Background(), session, source, commands))

	assert.Equal(t, []string{"NOOP", "QUIT"}, commands.seen)
	assert.Equal(t, "250 2.0.0 Ok\r\n221 2.0.0 Bye\r\n", sink.String())
	assert.True(t, transport.IsClosed())
	assert.Equal(t, 4, source.pos, "buffered lines are drained into the discarding handler")
}

func TestServe_DataTransaction(t *testing.T) {
	sink := &bufferSink{}
	session, _ := newTestSession(t, sink, nil)
	source := &scriptedSource{lines: []string{"MAIL FROM:<a@example.com>", "DATA", "hello", ".", "NOOP"}}

	require.NoError(t, Serve(context.Background(), session, source, &miniSMTP{}))

	assert.Equal(t,
		"250 2.1.0 Ok\r\n"+
			"354 End data with <CR><LF>.<CR><LF>\r\n"+
			"250 2.0.0 Queued hello\r\n"+
			"250 2.0.0 Ok\r\n",
		sink.String())
}

func TestServe_StartTLSWithoutSupportIsFatal(t *testing.T) {
	sink := &bufferSink{}
	session, _ := newTestSession(t, sink, nil)
	source := &scriptedSource{lines: []string{"STARTTLS", "NOOP"}}

	err := Serve(context.Background(), session, source, &miniSMTP{})
	assert.ErrorIs(t, err, ErrStartTLSUnsupported)
	assert.Empty(t, sink.String())
}

func TestServe_StartTLSResetsTransaction(t *testing.T) {
	enc := newStartTLSEncryption(t)
	sink := &bufferSink{}
	session, transport := newTestSession(t, sink, enc)
	source := &scriptedSource{lines: []string{"MAIL FROM:<a@example.com>", "STARTTLS"}}

	require.NoError(t, Serve(context.Background(), session, source, &miniSMTP{}))

	assert.True(t, transport.IsTLSStarted())
	_, ok := GetAttachment(session, senderKey, ScopeTransaction)
	assert.False(t, ok)
}

func TestServe_LineTooLongDisconnectsByDefault(t *testing.T) {
	sink := &bufferSink{}
	session, transport := newTestSession(t, sink, nil)
	commands := &miniSMTP{}
	source := &scriptedSource{
		lines: []string{"NOOP"},
		errs:  map[int]error{0: ErrLineTooLong},
	}

	require.NoError(t, Serve(context.Background(), session, source, commands))
	assert.True(t, transport.IsClosed())
	assert.Empty(t, commands.seen)
	assert.Empty(t, sink.String())
}

type tooLongAware struct {
	miniSMTP
}

func (h *tooLongAware) HandleLineTooLong(*Session) *Response {
	r, _ := NewResponse("500", "500 5.5.2 Line too long")
	return r
}

func TestServe_LineTooLongHandler(t *testing.T) {
	sink := &bufferSink{}
	session, _ := newTestSession(t, sink, nil)
	source := &scriptedSource{
		lines: []string{"NOOP"},
		errs:  map[int]error{0: ErrLineTooLong},
	}

	require.NoError(t, Serve(context.Background(), session, source, &tooLongAware{}))
	assert.Equal(t, "500 5.5.2 Line too long\r\n250 2.0.0 Ok\r\n", sink.String())
}

func TestServe_ReadErrorIsReturned(t *testing.T) {
	session, _ := newTestSession(t, &bufferSink{}, nil)
	boom := errors.New("boom")
	source := &scriptedSource{errs: map[int]error{0: boom}}

	assert.ErrorIs(t, Serve(context.Background(), session, source, &miniSMTP{}), boom)
}

// blockingSource blocks until the transport is closed.
type blockingSource struct {
	closed chan struct{}
}

func (b *blockingSource) ReadLine() ([]byte, error) {
	<-b.closed
	return nil, io.EOF
}

type signallingSink struct {
	bufferSink
	closed chan struct{}
	once   sync.Once
}

func (s *signallingSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.bufferSink.Close()
}

func TestServe_ContextCancelClosesTransport(t *testing.T) {
	sink := &signallingSink{closed: make(chan struct{})}
	session, transport := newTestSession(t, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, session, &blockingSource{closed: sink.closed}, &miniSMTP{})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.True(t, transport.IsClosed())
}
