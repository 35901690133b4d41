package server

// LineHandler intercepts raw input lines ahead of command parsing. Lines are
// passed without their delimiter. A nil Response means nothing is written.
type LineHandler interface {
	OnLine(session *Session, line []byte) *Response
}

// LineHandlerFunc adapts a function to LineHandler.
type LineHandlerFunc func(session *Session, line []byte) *Response

func (f LineHandlerFunc) OnLine(session *Session, line []byte) *Response {
	return f(session, line)
}

// lineHandlerStack is the per-connection stack of pushed handlers. The most
// recently pushed handler receives input.
type lineHandlerStack struct {
	handlers []LineHandler
}

func (st *lineHandlerStack) push(h LineHandler) {
	st.handlers = append(st.handlers, h)
}

func (st *lineHandlerStack) pop() (LineHandler, error) {
	n := len(st.handlers)
	if n == 0 {
		return nil, ErrLineHandlerStackEmpty
	}
	h := st.handlers[n-1]
	st.handlers[n-1] = nil
	st.handlers = st.handlers[:n-1]
	return h, nil
}

func (st *lineHandlerStack) top() LineHandler {
	if len(st.handlers) == 0 {
		return nil
	}
	return st.handlers[len(st.handlers)-1]
}

func (st *lineHandlerStack) depth() int { return len(st.handlers) }

func (st *lineHandlerStack) drain() int {
	n := len(st.handlers)
	clear(st.handlers)
	st.handlers = st.handlers[:0]
	return n
}

// discardHandler is installed once a session has ended. Every line that is
// still delivered is logged and dropped.
type discardHandler struct{}

func (discardHandler) OnLine(session *Session, line []byte) *Response {
	session.discardedLine(line)
	return nil
}
