package server

import (
	"bytes"
	"io"
	"sync/atomic"
)

// ResponseKind tags how a Response is written by the transport.
type ResponseKind int

const (
	// KindPlain is written as a single unit.
	KindPlain ResponseKind = iota
	// KindStream writes its lines first, then copies a one-shot body.
	KindStream
	// KindStartTLS is written as a single unit, after which the transport
	// takes the connection over with TLS.
	KindStartTLS
)

func (k ResponseKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindStream:
		return "stream"
	case KindStartTLS:
		return "starttls"
	default:
		return "unknown"
	}
}

// oneShot hands out its reader exactly once.
type oneShot struct {
	r     io.Reader
	taken atomic.Bool
}

func (o *oneShot) take() (io.Reader, error) {
	if o.taken.Swap(true) {
		return nil, ErrStreamConsumed
	}
	return o.r, nil
}

// Response is an outbound protocol reply: a status code, ordered lines and an
// end-of-session flag. Lines are appended while the response is built; once
// Immutable is called the returned value rejects further changes.
//
// Lines are written as given. Protocol handlers format them (for example
// "250-mx.example.com" / "250 OK") before appending.
type Response struct {
	code       string
	lines      []string
	endSession bool
	kind       ResponseKind
	body       *oneShot
	frozen     bool
}

func newResponse(kind ResponseKind, code, description string) (*Response, error) {
	if code == "" {
		return nil, ErrEmptyRetCode
	}
	return &Response{
		code:  code,
		lines: []string{description},
		kind:  kind,
	}, nil
}

// NewResponse builds a plain response with its first line.
func NewResponse(code, description string) (*Response, error) {
	return newResponse(KindPlain, code, description)
}

// NewStartTLSResponse builds a response that asks the transport to switch
// the connection to TLS once it has been written.
func NewStartTLSResponse(code, description string) (*Response, error) {
	return newResponse(KindStartTLS, code, description)
}

// NewStreamResponse builds a response whose lines are followed by body.
// The body is read once, by the transport, and must not be nil.
func NewStreamResponse(code, description string, body io.Reader) (*Response, error) {
	if body == nil {
		return nil, ErrNilStream
	}
	r, err := newResponse(KindStream, code, description)
	if err != nil {
		return nil, err
	}
	r.body = &oneShot{r: body}
	return r, nil
}

// DisconnectResponse returns the sentinel used to close a connection without
// writing anything: no code, no lines, end of session.
func DisconnectResponse() *Response {
	return &Response{endSession: true, frozen: true}
}

// AppendLine adds a line at the end of the response.
func (r *Response) AppendLine(line string) error {
	if r.frozen {
		return ErrResponseImmutable
	}
	r.lines = append(r.lines, line)
	return nil
}

// SetEndSession marks whether the connection ends after this response.
func (r *Response) SetEndSession(end bool) error {
	if r.frozen {
		return ErrResponseImmutable
	}
	r.endSession = end
	return nil
}

func (r *Response) RetCode() string        { return r.code }
func (r *Response) IsEndSession() bool     { return r.endSession }
func (r *Response) Kind() ResponseKind     { return r.kind }
func (r *Response) RequestsStartTLS() bool { return r.kind == KindStartTLS }

// IsDisconnect reports whether r carries nothing to write and only ends the session.
func (r *Response) IsDisconnect() bool {
	return r.code == "" && len(r.lines) == 0 && r.endSession
}

// Lines returns a copy of the lines in insertion order.
func (r *Response) Lines() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Immutable returns a read-only snapshot. A stream body is shared with the
// snapshot, so it can still only be consumed once across both values.
func (r *Response) Immutable() *Response {
	if r.frozen {
		return r
	}
	return &Response{
		code:       r.code,
		lines:      r.Lines(),
		endSession: r.endSession,
		kind:       r.kind,
		body:       r.body,
		frozen:     true,
	}
}

// Stream returns the body of a stream response. The second call, and any call
// on a non-stream response, returns ErrStreamConsumed.
func (r *Response) Stream() (io.Reader, error) {
	if r.body == nil {
		return nil, ErrStreamConsumed
	}
	return r.body.take()
}

// Encode joins the lines with delimiter. Every line, including the last one,
// is followed by the delimiter, so a response always ends on a line boundary.
func (r *Response) Encode(delimiter string) []byte {
	var buf bytes.Buffer
	for _, line := range r.lines {
		buf.WriteString(line)
		buf.WriteString(delimiter)
	}
	return buf.Bytes()
}
