package dbus

import "github.com/dbuswire/dbuswire/fragments"

// ParseError is returned for any wire-format violation encountered while
// parsing a message, object or signature. It is an alias for
// [fragments.ParseError] because the low-level parser in the fragments
// package is what actually detects and raises these errors; the alias
// lets callers of this package name the type without importing
// fragments themselves.
type ParseError = fragments.ParseError
