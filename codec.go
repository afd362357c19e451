package dbus

import (
	"fmt"
	"math"

	"github.com/dbuswire/dbuswire/fragments"
)

// ParseObject returns a continuation that parses one value of type t from
// the wire, under byte order order. Composite types allocated while
// parsing a variant's embedded signature go into an arena that the
// variant's own continuation creates.
//
// The returned continuation includes t's leading alignment padding,
// mirroring DBusType::mkObjectParser in the reference implementation: a
// type's object parser is never handed to a caller without first aligning
// to the type's own boundary.
func ParseObject(order fragments.ByteOrder, t DType, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	return fragments.Align(Alignment(t), func(st *fragments.State) (fragments.Cont, error) {
		return parseObjectBody(order, t, next), nil
	})
}

func parseObjectBody(order fragments.ByteOrder, t DType, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	switch t := t.(type) {
	case *byteType:
		return fragments.ReadByte(func(st *fragments.State, b byte) (fragments.Cont, error) {
			return next(st, ByteValue(b))
		})
	case *boolType:
		return fragments.ReadUint32(order, func(st *fragments.State, x uint32) (fragments.Cont, error) {
			if x > 1 {
				return fragments.Cont{}, parseErrorAt(st, "Boolean value that is not 0 or 1.")
			}
			return next(st, BoolValue(x == 1))
		})
	case *int16Type:
		return fragments.ReadUint16(order, func(st *fragments.State, x uint16) (fragments.Cont, error) {
			return next(st, Int16Value(int16(x)))
		})
	case *uint16Type:
		return fragments.ReadUint16(order, func(st *fragments.State, x uint16) (fragments.Cont, error) {
			return next(st, Uint16Value(x))
		})
	case *int32Type:
		return fragments.ReadUint32(order, func(st *fragments.State, x uint32) (fragments.Cont, error) {
			return next(st, Int32Value(int32(x)))
		})
	case *uint32Type:
		return fragments.ReadUint32(order, func(st *fragments.State, x uint32) (fragments.Cont, error) {
			return next(st, Uint32Value(x))
		})
	case *int64Type:
		return fragments.ReadUint64(order, func(st *fragments.State, x uint64) (fragments.Cont, error) {
			return next(st, Int64Value(int64(x)))
		})
	case *uint64Type:
		return fragments.ReadUint64(order, func(st *fragments.State, x uint64) (fragments.Cont, error) {
			return next(st, Uint64Value(x))
		})
	case *doubleType:
		return fragments.ReadUint64(order, func(st *fragments.State, x uint64) (fragments.Cont, error) {
			return next(st, DoubleValue(math.Float64frombits(x)))
		})
	case *unixFDType:
		return fragments.ReadUint32(order, func(st *fragments.State, x uint32) (fragments.Cont, error) {
			return next(st, UnixFDValue(x))
		})
	case *stringType:
		return parseLengthPrefixedString32(order, func(st *fragments.State, s string) (fragments.Cont, error) {
			v, err := NewString(s)
			if err != nil {
				return fragments.Cont{}, err
			}
			return next(st, v)
		})
	case *pathType:
		return parseLengthPrefixedString32(order, func(st *fragments.State, s string) (fragments.Cont, error) {
			v, err := NewPath(s)
			if err != nil {
				return fragments.Cont{}, err
			}
			return next(st, v)
		})
	case *signatureType:
		return parseLengthPrefixedString8(func(st *fragments.State, s string) (fragments.Cont, error) {
			v, err := NewSignatureValue(s)
			if err != nil {
				return fragments.Cont{}, err
			}
			return next(st, v)
		})
	case *variantType:
		return parseVariant(order, next)
	case *ArrayType:
		return parseArray(order, t.Elem, next)
	case *StructType:
		return parseStruct(order, t.Fields, next)
	case *DictEntryType:
		return ParseObject(order, t.Key, func(st *fragments.State, key DValue) (fragments.Cont, error) {
			return ParseObject(order, t.Value, func(st *fragments.State, value DValue) (fragments.Cont, error) {
				entry, err := NewDictEntry(key, value)
				if err != nil {
					return fragments.Cont{}, err
				}
				return next(st, entry)
			}), nil
		})
	default:
		panic("dbus: parseObjectBody: unknown DType")
	}
}

func parseErrorAt(st *fragments.State, format string, args ...any) error {
	return &fragments.ParseError{Pos: st.Pos(), Msg: fmt.Sprintf(format, args...)}
}

// parseLengthPrefixedString32 parses a u32 byte length, that many raw
// bytes, and a single NUL terminator, as used for String and ObjectPath.
func parseLengthPrefixedString32(order fragments.ByteOrder, next func(st *fragments.State, s string) (fragments.Cont, error)) fragments.Cont {
	return fragments.ReadUint32(order, func(st *fragments.State, length uint32) (fragments.Cont, error) {
		return fragments.ReadNBytes(uint64(length), func(st *fragments.State, bs []byte) (fragments.Cont, error) {
			s := string(bs)
			return readNulTerminator(func(st *fragments.State) (fragments.Cont, error) {
				return next(st, s)
			}), nil
		}), nil
	})
}

// readNulTerminator consumes the single NUL byte that ends a string,
// object path or signature on the wire, then runs next.
func readNulTerminator(next func(st *fragments.State) (fragments.Cont, error)) fragments.Cont {
	return fragments.ReadByte(func(st *fragments.State, b byte) (fragments.Cont, error) {
		if b != 0 {
			return fragments.Cont{}, parseErrorAt(st, "non-zero string terminator")
		}
		return next(st)
	})
}

// parseLengthPrefixedString8 parses a u8 byte length, that many raw
// bytes, and a single NUL terminator, as used for Signature.
func parseLengthPrefixedString8(next func(st *fragments.State, s string) (fragments.Cont, error)) fragments.Cont {
	return fragments.ReadByte(func(st *fragments.State, length byte) (fragments.Cont, error) {
		return fragments.ReadNBytes(uint64(length), func(st *fragments.State, bs []byte) (fragments.Cont, error) {
			s := string(bs)
			return readNulTerminator(func(st *fragments.State) (fragments.Cont, error) {
				return next(st, s)
			}), nil
		}), nil
	})
}

// parseVariant parses a variant's u8-prefixed signature directly against
// the wire bytes, driving the same typeCont/parseTypeChar grammar that
// ParseSignature/ParseSingleType (signature.go) run over an in-memory
// string, then parses the aligned value of the resulting type. The length
// prefix's end position is computed with an overflow check, mirroring
// dbus_parse.cpp's LengthCont (__builtin_add_overflow(pos, len_, &endpos)
// -> "Signature length integer overflow."), and the grammar's top-level
// continuation re-checks that position once the type completes, mirroring
// TypeCont's "Incorrect variant signature length." check.
func parseVariant(order fragments.ByteOrder, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	return fragments.ReadByte(func(st *fragments.State, length byte) (fragments.Cont, error) {
		return fragments.Cont{
			Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
				endPos, ok := addLength(st.Pos(), uint64(length))
				if !ok {
					return fragments.Cont{}, parseErrorAt(st, "signature length integer overflow")
				}
				arena := &TypeArena{}
				top := typeCont{
					ok: func(st *fragments.State, arena *TypeArena, t DType) (fragments.Cont, error) {
						return fragments.Cont{
							Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
								if st.Pos() != endPos {
									return fragments.Cont{}, parseErrorAt(st, "Incorrect variant signature length.")
								}
								return readNulTerminator(func(st *fragments.State) (fragments.Cont, error) {
									return ParseObject(order, t, func(st *fragments.State, inner DValue) (fragments.Cont, error) {
										v, err := NewVariant(inner)
										if err != nil {
											return fragments.Cont{}, err
										}
										return next(st, v)
									}), nil
								}), nil
							},
						}, nil
					},
					closeParen: unexpectedCloseParen("variant signature"),
				}
				return parseTypeChar(arena, top), nil
			},
		}, nil
	})
}

// parseArray parses a u32 byte length, aligns to elem's boundary, then
// parses elements of type elem until the byte length is exhausted.
func parseArray(order fragments.ByteOrder, elem DType, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	return fragments.ReadUint32(order, func(st *fragments.State, length uint32) (fragments.Cont, error) {
		if length > MaxArrayLength {
			return fragments.Cont{}, parseErrorAt(st, "array byte length %d exceeds maximum %d", length, MaxArrayLength)
		}
		return fragments.Align(Alignment(elem), func(st *fragments.State) (fragments.Cont, error) {
			endPos, ok := arrayEndPos(st.Pos(), length)
			if !ok {
				return fragments.Cont{}, parseErrorAt(st, "array length integer overflow")
			}
			return parseArrayElements(order, elem, endPos, nil, next), nil
		}), nil
	})
}

// addLength computes pos+length, reporting ok=false if the sum overflows a
// uint64. Shared by the array and variant-signature length checks, each of
// which reports its own distinct error message on overflow, mirroring
// dbus_parse.cpp's two separate __builtin_add_overflow(pos, len_, &endpos)
// guards ahead of "Array length integer overflow." and "Signature length
// integer overflow."
func addLength(pos, length uint64) (sum uint64, ok bool) {
	sum = pos + length
	return sum, sum >= pos
}

// arrayEndPos computes the absolute stream position at which an array's
// elements end, reporting ok=false if pos+length overflows a uint64.
func arrayEndPos(pos uint64, length uint32) (uint64, bool) {
	return addLength(pos, uint64(length))
}

func parseArrayElements(order fragments.ByteOrder, elem DType, endPos uint64, elements []DValue, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	return fragments.Cont{
		Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
			pos := st.Pos()
			switch {
			case pos < endPos:
				return ParseObject(order, elem, func(st *fragments.State, e DValue) (fragments.Cont, error) {
					return parseArrayElements(order, elem, endPos, append(elements, e), next), nil
				}), nil
			case pos == endPos:
				v, err := NewArray(elem, elements)
				if err != nil {
					return fragments.Cont{}, err
				}
				return next(st, v)
			default:
				return fragments.Cont{}, parseErrorAt(st, "Incorrect array length.")
			}
		},
	}
}

// parseStruct parses each field type in fields, in order, accumulating
// the resulting values into a StructValue.
func parseStruct(order fragments.ByteOrder, fields []DType, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	return parseStructFields(order, fields, 0, nil, next)
}

func parseStructFields(order fragments.ByteOrder, fields []DType, i int, values []DValue, next func(st *fragments.State, v DValue) (fragments.Cont, error)) fragments.Cont {
	if i >= len(fields) {
		return fragments.Cont{
			Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
				return next(st, NewStruct(values))
			},
		}
	}
	return ParseObject(order, fields[i], func(st *fragments.State, v DValue) (fragments.Cont, error) {
		return parseStructFields(order, fields, i+1, append(values, v), next), nil
	})
}

// Serialize writes v's wire representation (including leading alignment
// padding) to s.
func Serialize(s fragments.Serializer, v DValue) {
	s.Pad(Alignment(TypeOf(v)))
	serializeBody(s, v)
}

func serializeBody(s fragments.Serializer, v DValue) {
	switch v := v.(type) {
	case ByteValue:
		s.WriteByte(byte(v))
	case BoolValue:
		if v {
			s.WriteUint32(1)
		} else {
			s.WriteUint32(0)
		}
	case Int16Value:
		s.WriteUint16(uint16(v))
	case Uint16Value:
		s.WriteUint16(uint16(v))
	case Int32Value:
		s.WriteUint32(uint32(v))
	case Uint32Value:
		s.WriteUint32(uint32(v))
	case Int64Value:
		s.WriteUint64(uint64(v))
	case Uint64Value:
		s.WriteUint64(uint64(v))
	case DoubleValue:
		s.WriteUint64(math.Float64bits(float64(v)))
	case UnixFDValue:
		s.WriteUint32(uint32(v))
	case StringValue:
		serializeString32(s, string(v))
	case PathValue:
		serializeString32(s, string(v))
	case SignatureValue:
		serializeString8(s, string(v))
	case VariantValue:
		serializeVariant(s, v)
	case *ArrayValue:
		serializeArray(s, v)
	case *StructValue:
		for _, f := range v.Fields {
			Serialize(s, f)
		}
	case *DictEntryValue:
		Serialize(s, v.Key)
		Serialize(s, v.Value)
	default:
		panic("dbus: serializeBody: unknown DValue")
	}
}

func serializeString32(s fragments.Serializer, str string) {
	s.WriteUint32(uint32(len(str)))
	s.WriteBytes([]byte(str))
	s.WriteByte(0)
}

func serializeString8(s fragments.Serializer, str string) {
	s.WriteByte(byte(len(str)))
	s.WriteBytes([]byte(str))
	s.WriteByte(0)
}

func serializeVariant(s fragments.Serializer, v VariantValue) {
	sig := TypeSignature(TypeOf(v.Inner))
	s.WriteByte(byte(len(sig)))
	s.WriteBytes([]byte(sig))
	s.WriteByte(0)
	Serialize(s, v.Inner)
}

func serializeArray(s fragments.Serializer, v *ArrayValue) {
	s.RecordArraySize(func(arraySize uint32) uint32 {
		s.WriteUint32(arraySize)
		s.Pad(Alignment(v.Elem))
		start := s.Pos()
		for _, e := range v.Elements {
			s.Pad(Alignment(v.Elem))
			serializeBody(s, e)
		}
		return uint32(s.Pos() - start)
	})
}
