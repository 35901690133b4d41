package server

import (
	"bytes"
)

// DataCompleteFunc receives the collected body once the terminating "." line
// arrives. truncated is true when the body exceeded the size limit; the data
// then holds only the part that fit.
type DataCompleteFunc func(session *Session, data []byte, truncated bool) *Response

// DataLineHandler collects a dot-terminated body (SMTP DATA, LMTP DATA, POP3
// multi-line input). Leading dots are unstuffed and lines are rejoined with
// CRLF. It pops itself when the terminator is seen.
type DataLineHandler struct {
	maxSize    int64
	buf        bytes.Buffer
	truncated  bool
	onComplete DataCompleteFunc
}

// NewDataLineHandler creates a handler; maxSize <= 0 disables the limit.
func NewDataLineHandler(maxSize int64, onComplete DataCompleteFunc) *DataLineHandler {
	return &DataLineHandler{maxSize: maxSize, onComplete: onComplete}
}

func (h *DataLineHandler) OnLine(session *Session, line []byte) *Response {
	if len(line) == 1 && line[0] == '.' {
		h.pop(session)
		return h.onComplete(session, h.buf.Bytes(), h.truncated)
	}

	if len(line) > 0 && line[0] == '.' {
		line = line[1:]
	}
	if h.truncated {
		return nil
	}
	if h.maxSize > 0 && int64(h.buf.Len()+len(line)+2) > h.maxSize {
		h.truncated = true
		return nil
	}
	h.buf.Write(line)
	h.buf.WriteString("\r\n")
	return nil
}

// pop removes h from the stack. A STARTTLS takeover may already have drained
// it, and then another handler's entry must stay where it is.
func (h *DataLineHandler) pop(session *Session) {
	if session.TopLineHandler() != LineHandler(h) {
		session.Logger().Debug("Data handler no longer on top of the stack", "depth", session.PushedLineHandlerCount())
		return
	}
	if err := session.PopLineHandler(); err != nil {
		session.Logger().Debug("Data handler pop failed", "error", err)
	}
}
