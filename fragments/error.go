package fragments

import "fmt"

// ParseError is returned for any wire-format violation encountered while
// parsing. Pos is the absolute byte offset, from the start of the message
// or signature being parsed, at which the violation was detected.
type ParseError struct {
	Pos uint64
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dbus: parse error at offset %d: %s", e.Pos, e.Msg)
}

func errAt(pos uint64, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
