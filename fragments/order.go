package fragments

import "encoding/binary"

// ByteOrder is the byte order of a DBus message, together with the wire
// byte that announces it. DBus has no concept of "native" byte order: the
// first byte of every message says which of exactly two orders the rest of
// the message uses, so unlike [binary.ByteOrder] there is no third option
// here.
type ByteOrder interface {
	byteOrder
	// Flag returns the wire byte ('l' or 'B') that announces this order
	// as the first byte of a message.
	Flag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
	flag byte
}

func (w wrapStd) Flag() byte { return w.flag }

var (
	// LittleEndian is the byte order selected by the wire byte 'l'.
	LittleEndian ByteOrder = wrapStd{binary.LittleEndian, 'l'}
	// BigEndian is the byte order selected by the wire byte 'B'.
	BigEndian ByteOrder = wrapStd{binary.BigEndian, 'B'}
)

// ByteOrderForFlag returns the ByteOrder corresponding to a message's first
// byte, or ok=false if the byte is neither 'l' nor 'B'.
func ByteOrderForFlag(b byte) (order ByteOrder, ok bool) {
	switch b {
	case 'l':
		return LittleEndian, true
	case 'B':
		return BigEndian, true
	default:
		return nil, false
	}
}
