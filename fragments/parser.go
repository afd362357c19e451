// package fragments provides the low-level, incremental byte-stream parser
// and two-pass serializer that the dbus package's object and message codecs
// are built on.
//
// Nothing in this package knows about DBus types or values. It only knows
// how to consume a bounded number of bytes and hand them to a callback, and
// how to record and replay array byte-lengths across a dry-run/emit pair.
// Callers assemble these primitives into the type-specific codec that the
// dbus package exposes.
package fragments

// State is the byte position a Parser has reached. It exists mainly so
// that a Cont's Step function can compute alignment padding relative to
// the absolute start of the message, not to whatever container it happens
// to be nested inside.
type State struct {
	pos uint64
}

// Pos returns the number of bytes consumed so far.
func (s *State) Pos() uint64 { return s.pos }

// Cont is a parse continuation: it is willing to accept between MinReq and
// MaxReq bytes on its next Step. A Cont with a nil Step (the zero value,
// also returned by Stop) is terminal.
//
// Step must not retain buf past its return.
type Cont struct {
	MinReq uint8
	MaxReq uint64
	Step   func(st *State, buf []byte) (Cont, error)
}

func (c Cont) done() bool { return c.Step == nil }

// Stop is the terminal continuation, signalling that parsing is complete.
var Stop = Cont{}

// Parser drives a chain of Conts over byte chunks fed one at a time. A
// fixed 255-byte caller buffer is always sufficient to satisfy any Cont's
// MinReq, since MinReq is a uint8.
type Parser struct {
	state State
	cont  Cont
}

// NewParser creates a Parser that begins with start.
func NewParser(start Cont) *Parser {
	p := &Parser{cont: start}
	p.drain()
	return p
}

// Pos returns the number of bytes consumed so far.
func (p *Parser) Pos() uint64 { return p.state.pos }

// Done reports whether parsing has completed.
func (p *Parser) Done() bool { return p.cont.done() }

// MinRequired returns the minimum number of bytes the next Feed call must
// supply.
func (p *Parser) MinRequired() uint8 { return p.cont.MinReq }

// MaxRequired returns the maximum number of bytes the next Feed call may
// supply. It is zero only when Done reports true.
func (p *Parser) MaxRequired() uint64 { return p.cont.MaxReq }

// Feed advances the parser by buf. len(buf) must be between MinRequired()
// and MaxRequired() inclusive.
func (p *Parser) Feed(buf []byte) error {
	if p.cont.done() {
		return errAt(p.state.pos, "parser has already finished")
	}
	n := uint64(len(buf))
	if n < uint64(p.cont.MinReq) || n > p.cont.MaxReq {
		return errAt(p.state.pos, "fed %d bytes, want between %d and %d", n, p.cont.MinReq, p.cont.MaxReq)
	}
	next, err := p.cont.Step(&p.state, buf)
	if err != nil {
		return err
	}
	newPos := p.state.pos + n
	if newPos < p.state.pos {
		return errAt(p.state.pos, "byte position overflow")
	}
	p.state.pos = newPos
	p.cont = next
	return p.drain()
}

// drain synchronously runs any continuation that needs zero more bytes to
// make progress (for example, zero bytes of alignment padding, or an empty
// fixed-length field), so that MinRequired/MaxRequired/Done always reflect
// a continuation that genuinely needs input.
func (p *Parser) drain() error {
	for !p.cont.done() && p.cont.MaxReq == 0 {
		next, err := p.cont.Step(&p.state, nil)
		if err != nil {
			return err
		}
		p.cont = next
	}
	return nil
}

// ReadByte returns a Cont that consumes exactly one byte and passes it to
// next.
func ReadByte(next func(st *State, b byte) (Cont, error)) Cont {
	return Cont{
		MinReq: 1,
		MaxReq: 1,
		Step: func(st *State, buf []byte) (Cont, error) {
			return next(st, buf[0])
		},
	}
}

// ReadUint16 returns a Cont that consumes exactly 2 bytes and decodes them
// under order.
func ReadUint16(order ByteOrder, next func(st *State, v uint16) (Cont, error)) Cont {
	return Cont{
		MinReq: 2,
		MaxReq: 2,
		Step: func(st *State, buf []byte) (Cont, error) {
			return next(st, order.Uint16(buf))
		},
	}
}

// ReadUint32 returns a Cont that consumes exactly 4 bytes and decodes them
// under order.
func ReadUint32(order ByteOrder, next func(st *State, v uint32) (Cont, error)) Cont {
	return Cont{
		MinReq: 4,
		MaxReq: 4,
		Step: func(st *State, buf []byte) (Cont, error) {
			return next(st, order.Uint32(buf))
		},
	}
}

// ReadUint64 returns a Cont that consumes exactly 8 bytes and decodes them
// under order.
func ReadUint64(order ByteOrder, next func(st *State, v uint64) (Cont, error)) Cont {
	return Cont{
		MinReq: 8,
		MaxReq: 8,
		Step: func(st *State, buf []byte) (Cont, error) {
			return next(st, order.Uint64(buf))
		},
	}
}

// ReadNBytes returns a Cont that accumulates n bytes, possibly across
// several Feed calls, and passes the concatenation to next. If n is zero,
// next runs immediately with a nil slice.
func ReadNBytes(n uint64, next func(st *State, bs []byte) (Cont, error)) Cont {
	if n == 0 {
		return Cont{Step: func(st *State, _ []byte) (Cont, error) { return next(st, nil) }}
	}
	acc := make([]byte, 0, n)
	var step func(st *State, buf []byte) (Cont, error)
	step = func(st *State, buf []byte) (Cont, error) {
		acc = append(acc, buf...)
		remaining := n - uint64(len(acc))
		if remaining == 0 {
			return next(st, acc)
		}
		return Cont{MaxReq: remaining, Step: step}, nil
	}
	return Cont{MaxReq: n, Step: step}
}

// ReadZeros returns a Cont that consumes n bytes, every one of which must
// be zero, then runs next. It is used for alignment padding. If n is zero,
// next runs immediately.
func ReadZeros(n uint64, next func(st *State) (Cont, error)) Cont {
	if n == 0 {
		return Cont{Step: func(st *State, _ []byte) (Cont, error) { return next(st) }}
	}
	remaining := n
	var step func(st *State, buf []byte) (Cont, error)
	step = func(st *State, buf []byte) (Cont, error) {
		for i, b := range buf {
			if b != 0 {
				return Cont{}, errAt(st.pos+uint64(i), "non-zero padding byte")
			}
		}
		remaining -= uint64(len(buf))
		if remaining == 0 {
			return next(st)
		}
		return Cont{MaxReq: remaining, Step: step}, nil
	}
	return Cont{MaxReq: n, Step: step}
}

// Align returns a Cont that consumes whatever padding is needed to bring
// the current position to a multiple of align, then runs then. The
// padding length is computed from the position at the moment Align's Cont
// actually runs (via the enclosing Parser's drain loop), not at the
// moment Align is called, since the caller building a Cont ahead of time
// does not yet know what position it will run at. then itself runs only
// after the Parser has counted the padding bytes, so st.Pos() inside then
// is the aligned position.
func Align(align int, then func(st *State) (Cont, error)) Cont {
	return Cont{
		Step: func(st *State, _ []byte) (Cont, error) {
			return ReadZeros(PaddingLen(st.pos, align), func(st *State) (Cont, error) {
				return Cont{Step: func(st *State, _ []byte) (Cont, error) { return then(st) }}, nil
			}), nil
		},
	}
}

// PaddingLen returns the number of padding bytes needed to advance pos to
// the next multiple of align, which must be a power of two. This is the
// same two's-complement trick the object codec uses to compute alignment
// without a modulo operation.
func PaddingLen(pos uint64, align int) uint64 {
	a := uint64(align)
	return (a - 1) & (-pos)
}
