package mcpclient

import "fmt"

// ErrorKind is the external tool client's stable error taxonomy
// (spec.md §4.4/§7).
type ErrorKind string

const (
	KindTransport     ErrorKind = "Transport"
	KindProtocol      ErrorKind = "Protocol"
	KindTimeout       ErrorKind = "Timeout"
	KindToolNotFound  ErrorKind = "ToolNotFound"
	KindInvalidParams ErrorKind = "InvalidParams"
	KindToolError     ErrorKind = "ToolError"
)

// Error is a structured external-tool-client failure carrying a stable
// Kind alongside the dynamic message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mcpclient: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind ErrorKind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
