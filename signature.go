package dbus

import (
	"fmt"

	"github.com/dbuswire/dbuswire/fragments"
)

// typeCont is a continuation for the type grammar below: ok is invoked
// once a complete type has been assembled, closeParen is invoked instead
// when a ')' is read in a context that expects one (the tail of a struct's
// field list). Contexts that don't expect a ')' (the top level, an array
// element, a dict entry's key or value) report it as an error through
// closeParen, mirroring the reference implementation's DBusType::
// ParseTypeCont, whose parseCloseParen override differs per call site.
type typeCont struct {
	ok         func(st *fragments.State, arena *TypeArena, t DType) (fragments.Cont, error)
	closeParen func(st *fragments.State, arena *TypeArena) (fragments.Cont, error)
}

func unexpectedCloseParen(context string) func(st *fragments.State, arena *TypeArena) (fragments.Cont, error) {
	return func(st *fragments.State, arena *TypeArena) (fragments.Cont, error) {
		return fragments.Cont{}, parseErrorAt(st, "unexpected close paren while parsing %s type", context)
	}
}

// parseTypeChar returns a Cont that reads one type-signature character and
// either completes a leaf type or recurses into a composite one, driving
// cont once a full type has been assembled. This is the single grammar
// that both ParseSignature/ParseSingleType (driven synchronously over an
// already-buffered string) and parseVariant in codec.go (driven
// incrementally off the live message stream) run; there is no separate,
// non-continuation signature parser.
func parseTypeChar(arena *TypeArena, cont typeCont) fragments.Cont {
	return fragments.ReadByte(func(st *fragments.State, c byte) (fragments.Cont, error) {
		switch c {
		case 'y':
			return cont.ok(st, arena, TByte)
		case 'b':
			return cont.ok(st, arena, TBool)
		case 'n':
			return cont.ok(st, arena, TInt16)
		case 'q':
			return cont.ok(st, arena, TUint16)
		case 'i':
			return cont.ok(st, arena, TInt32)
		case 'u':
			return cont.ok(st, arena, TUint32)
		case 'x':
			return cont.ok(st, arena, TInt64)
		case 't':
			return cont.ok(st, arena, TUint64)
		case 'd':
			return cont.ok(st, arena, TDouble)
		case 'h':
			return cont.ok(st, arena, TUnixFD)
		case 's':
			return cont.ok(st, arena, TString)
		case 'o':
			return cont.ok(st, arena, TPath)
		case 'g':
			return cont.ok(st, arena, TSignature)
		case 'v':
			return cont.ok(st, arena, TVariant)
		case 'a':
			return parseTypeChar(arena, arrayCont(cont)), nil
		case '(':
			return parseTypeChar(arena, structCont(nil, cont)), nil
		case ')':
			return cont.closeParen(st, arena)
		case '{':
			return parseTypeChar(arena, dictKeyCont(cont)), nil
		case '}':
			return fragments.Cont{}, parseErrorAt(st, "unexpected close brace")
		default:
			return fragments.Cont{}, parseErrorAt(st, "invalid type character: %d", c)
		}
	})
}

func arrayCont(cont typeCont) typeCont {
	return typeCont{
		ok: func(st *fragments.State, arena *TypeArena, elem DType) (fragments.Cont, error) {
			return cont.ok(st, arena, arena.AllocArray(elem))
		},
		closeParen: unexpectedCloseParen("array"),
	}
}

func structCont(fields []DType, cont typeCont) typeCont {
	return typeCont{
		ok: func(st *fragments.State, arena *TypeArena, t DType) (fragments.Cont, error) {
			return parseTypeChar(arena, structCont(append(fields, t), cont)), nil
		},
		closeParen: func(st *fragments.State, arena *TypeArena) (fragments.Cont, error) {
			return cont.ok(st, arena, arena.AllocStruct(fields))
		},
	}
}

func dictKeyCont(cont typeCont) typeCont {
	return typeCont{
		ok: func(st *fragments.State, arena *TypeArena, key DType) (fragments.Cont, error) {
			return parseTypeChar(arena, dictValueCont(key, cont)), nil
		},
		closeParen: unexpectedCloseParen("dict entry"),
	}
}

func dictValueCont(key DType, cont typeCont) typeCont {
	return typeCont{
		ok: func(st *fragments.State, arena *TypeArena, value DType) (fragments.Cont, error) {
			return fragments.ReadByte(func(st *fragments.State, c byte) (fragments.Cont, error) {
				if c != '}' {
					return fragments.Cont{}, parseErrorAt(st, "expected a '}' character")
				}
				dt, err := arena.AllocDictEntry(key, value)
				if err != nil {
					return fragments.Cont{}, err
				}
				return cont.ok(st, arena, dt)
			}), nil
		},
		closeParen: unexpectedCloseParen("dict entry"),
	}
}

// ParseSignature parses sig as a sequence of zero or more complete types,
// consuming the entire string. This is the grammar used for a message
// body's SIGNATURE header field, which may describe several top-level
// values.
//
// A SIGNATURE header field's string is at most MaxSignatureLength bytes
// and already fully in memory when the body is parsed, so this drives the
// same typeCont/parseTypeChar grammar
// parseVariant drives off the wire, just synchronously against an
// in-memory string one byte at a time instead of incrementally as bytes
// arrive. This mirrors DBusObjectSignature::toTypes's self-driving loop:
// a single persistent top-level continuation accumulates types and stops
// once the string is exhausted.
func ParseSignature(sig string) ([]DType, *TypeArena, error) {
	arena := &TypeArena{}
	if len(sig) == 0 {
		return nil, arena, nil
	}
	endPos := uint64(len(sig))

	var result []DType
	var top typeCont
	top = typeCont{
		ok: func(st *fragments.State, arena *TypeArena, t DType) (fragments.Cont, error) {
			result = append(result, t)
			return fragments.Cont{
				Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
					if st.Pos() < endPos {
						return parseTypeChar(arena, top), nil
					}
					return fragments.Stop, nil
				},
			}, nil
		},
		closeParen: unexpectedCloseParen("signature"),
	}

	p := fragments.NewParser(parseTypeChar(arena, top))
	for i := 0; i < len(sig) && !p.Done(); i++ {
		if err := p.Feed([]byte{sig[i]}); err != nil {
			return nil, nil, err
		}
	}
	if !p.Done() {
		return nil, nil, fmt.Errorf("dbus: signature ended in the middle of a type")
	}
	return result, arena, nil
}

// ParseSingleType parses sig as exactly one complete type, as required for
// a variant's embedded signature. It returns an error if sig describes
// zero types, more than one type, or a partial type.
func ParseSingleType(sig string) (DType, *TypeArena, error) {
	if len(sig) == 0 {
		return nil, nil, fmt.Errorf("dbus: incorrect variant signature length")
	}
	arena := &TypeArena{}
	var result DType
	top := typeCont{
		ok: func(st *fragments.State, arena *TypeArena, t DType) (fragments.Cont, error) {
			result = t
			return fragments.Stop, nil
		},
		closeParen: unexpectedCloseParen("variant signature"),
	}

	p := fragments.NewParser(parseTypeChar(arena, top))
	for i := 0; i < len(sig); i++ {
		if p.Done() {
			return nil, nil, fmt.Errorf("dbus: incorrect variant signature length")
		}
		if err := p.Feed([]byte{sig[i]}); err != nil {
			return nil, nil, err
		}
	}
	if !p.Done() {
		return nil, nil, fmt.Errorf("dbus: signature ended in the middle of a type")
	}
	return result, arena, nil
}
