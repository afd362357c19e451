package dbus

import (
	"fmt"

	"github.com/dbuswire/dbuswire/fragments"
)

// MsgType identifies the purpose of a [Message], the second byte of its
// fixed header.
type MsgType byte

const (
	MsgTypeMethodCall   MsgType = 1
	MsgTypeMethodReturn MsgType = 2
	MsgTypeError        MsgType = 3
	MsgTypeSignal       MsgType = 4
)

// HeaderFlags is a bitmask of the third byte of a Message's fixed header.
type HeaderFlags byte

const (
	FlagNoReplyExpected      HeaderFlags = 1 << 0
	FlagNoAutoStart          HeaderFlags = 1 << 1
	FlagAllowInteractiveAuth HeaderFlags = 1 << 2
)

// HdrCode identifies a header field's meaning, the first byte of each
// struct in the header's field array.
type HdrCode byte

const (
	HdrPath        HdrCode = 1
	HdrInterface   HdrCode = 2
	HdrMember      HdrCode = 3
	HdrErrorName   HdrCode = 4
	HdrReplySerial HdrCode = 5
	HdrDestination HdrCode = 6
	HdrSender      HdrCode = 7
	HdrSignature   HdrCode = 8
	HdrUnixFDs     HdrCode = 9
)

// ProtocolVersion is the only version this package implements.
const ProtocolVersion = 1

// HeaderField is one (code, value) pair from a message's variable header
// field array. Value is the field's content, not the variant that carries
// it on the wire: Serialize wraps it in a variant and ParseMessage unwraps
// it.
type HeaderField struct {
	Code  HdrCode
	Value DValue
}

// Header is the fixed-format part of a DBus message, read and written
// before the message body.
type Header struct {
	Order           fragments.ByteOrder
	Type            MsgType
	Flags           HeaderFlags
	ProtocolVersion byte
	BodySize        uint32
	Serial          uint32
	Fields          []HeaderField
}

// Field returns the value of the first header field with the given code,
// or nil if none is present.
func (h *Header) Field(code HdrCode) DValue {
	for _, f := range h.Fields {
		if f.Code == code {
			return f.Value
		}
	}
	return nil
}

// Valid reports whether h carries the header fields required for its
// message Type, per the DBus specification's per-type requirements.
func (h *Header) Valid() error {
	if h.Serial == 0 {
		return fmt.Errorf("dbus: invalid message with zero Serial")
	}
	if h.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("dbus: unsupported protocol version %d", h.ProtocolVersion)
	}
	require := func(code HdrCode, name string) error {
		if h.Field(code) == nil {
			return fmt.Errorf("dbus: message missing required %s header field", name)
		}
		return nil
	}
	switch h.Type {
	case MsgTypeMethodCall:
		if err := require(HdrPath, "PATH"); err != nil {
			return err
		}
		if err := require(HdrMember, "MEMBER"); err != nil {
			return err
		}
	case MsgTypeSignal:
		if err := require(HdrPath, "PATH"); err != nil {
			return err
		}
		if err := require(HdrInterface, "INTERFACE"); err != nil {
			return err
		}
		if err := require(HdrMember, "MEMBER"); err != nil {
			return err
		}
	case MsgTypeError:
		if err := require(HdrErrorName, "ERROR_NAME"); err != nil {
			return err
		}
		if err := require(HdrReplySerial, "REPLY_SERIAL"); err != nil {
			return err
		}
	case MsgTypeMethodReturn:
		if err := require(HdrReplySerial, "REPLY_SERIAL"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("dbus: unknown message type %d", h.Type)
	}
	return nil
}

// Message is a complete DBus message: a Header plus a Body whose types
// are determined by the header's SIGNATURE field.
type Message struct {
	Header Header
	Body   []DValue
}

// Valid reports whether m's header carries the fields required for its
// message type, including a non-zero Serial. Callers run this as a
// second, explicit check after a successful parse: ParseMessage only
// decodes the wire format and does not itself reject a structurally
// well-formed but semantically invalid header.
func (m *Message) Valid() error {
	return m.Header.Valid()
}

// ParseMessage returns a [fragments.Parser] that parses one complete
// message, determining byte order from the message's own leading
// endianness byte. *result is populated once the parser finishes; it must
// not be read before then.
//
// ParseMessage mirrors DBusMessage::parse in the reference implementation,
// except that Go has no destructor-driven two-stage split: the
// endianness byte is consumed first, by itself, so that every later Cont
// in the chain can close over a concrete order.
func ParseMessage(result *Message) *fragments.Parser {
	return fragments.NewParser(fragments.ReadByte(func(st *fragments.State, flag byte) (fragments.Cont, error) {
		order, ok := fragments.ByteOrderForFlag(flag)
		if !ok {
			return fragments.Cont{}, &fragments.ParseError{Pos: st.Pos(), Msg: fmt.Sprintf("invalid endianness byte %d", flag)}
		}
		result.Header.Order = order
		return parseHeaderRest(order, result), nil
	}))
}

func parseHeaderRest(order fragments.ByteOrder, result *Message) fragments.Cont {
	return fragments.ReadByte(func(st *fragments.State, typ byte) (fragments.Cont, error) {
		result.Header.Type = MsgType(typ)
		return fragments.ReadByte(func(st *fragments.State, flags byte) (fragments.Cont, error) {
			result.Header.Flags = HeaderFlags(flags)
			return fragments.ReadByte(func(st *fragments.State, proto byte) (fragments.Cont, error) {
				result.Header.ProtocolVersion = proto
				return fragments.ReadUint32(order, func(st *fragments.State, bodySize uint32) (fragments.Cont, error) {
					if bodySize > MaxMessageLength {
						return fragments.Cont{}, &fragments.ParseError{Pos: st.Pos(), Msg: fmt.Sprintf("body size %d exceeds maximum message length %d", bodySize, MaxMessageLength)}
					}
					result.Header.BodySize = bodySize
					return fragments.ReadUint32(order, func(st *fragments.State, serial uint32) (fragments.Cont, error) {
						result.Header.Serial = serial
						return parseHeaderFields(order, result), nil
					}), nil
				}), nil
			}), nil
		}), nil
	})
}

var headerFieldStructType = &StructType{Fields: []DType{TByte, TVariant}}

func parseHeaderFields(order fragments.ByteOrder, result *Message) fragments.Cont {
	return fragments.Align(4, func(st *fragments.State) (fragments.Cont, error) {
		return parseArray(order, headerFieldStructType, parseHeaderFieldsDone(order, result)), nil
	})
}

func parseHeaderFieldsDone(order fragments.ByteOrder, result *Message) func(st *fragments.State, v DValue) (fragments.Cont, error) {
	return func(st *fragments.State, v DValue) (fragments.Cont, error) {
		arr := v.(*ArrayValue)
		fields := make([]HeaderField, len(arr.Elements))
		for i, e := range arr.Elements {
			s := e.(*StructValue)
			fields[i] = HeaderField{
				Code:  HdrCode(s.Fields[0].(ByteValue)),
				Value: s.Fields[1].(VariantValue).Inner,
			}
		}
		result.Header.Fields = fields
		return fragments.Align(8, func(st *fragments.State) (fragments.Cont, error) {
			return parseBody(order, result), nil
		}), nil
	}
}

func parseBody(order fragments.ByteOrder, result *Message) fragments.Cont {
	if result.Header.BodySize == 0 {
		result.Body = nil
		return fragments.Stop
	}
	sigField := result.Header.Field(HdrSignature)
	if sigField == nil {
		return fragments.Cont{Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
			return fragments.Cont{}, &fragments.ParseError{Pos: st.Pos(), Msg: "message has a non-zero body size but no SIGNATURE header field"}
		}}
	}
	sig, ok := sigField.(SignatureValue)
	if !ok {
		return fragments.Cont{Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
			return fragments.Cont{}, &fragments.ParseError{Pos: st.Pos(), Msg: "SIGNATURE header field does not contain a signature"}
		}}
	}
	types, _, err := ParseSignature(string(sig))
	if err != nil {
		return fragments.Cont{Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
			return fragments.Cont{}, err
		}}
	}
	return parseBodyValues(order, types, 0, nil, result)
}

func parseBodyValues(order fragments.ByteOrder, types []DType, i int, values []DValue, result *Message) fragments.Cont {
	if i >= len(types) {
		return fragments.Cont{
			Step: func(st *fragments.State, _ []byte) (fragments.Cont, error) {
				result.Body = values
				return fragments.Stop, nil
			},
		}
	}
	return ParseObject(order, types[i], func(st *fragments.State, v DValue) (fragments.Cont, error) {
		return parseBodyValues(order, types, i+1, append(values, v), result), nil
	})
}

// Serialize encodes m to its wire representation under order.
//
// Serialization proceeds in three passes, because the header's BodySize
// field must be known before the header itself can be written, and the
// array-length table (see [fragments.Serializer]) must be computed over
// the whole message before any of it is emitted. The reference
// implementation splits this the same way, but does so implicitly via
// C++ destructor ordering; Go has no equivalent, so the three passes are
// explicit here: (1) dry-run the body alone to compute BodySize, (2)
// dry-run the complete header+pad+body to build the array-length table,
// (3) a single buffer pass that emits real bytes, replaying that table.
func (m *Message) Serialize(order fragments.ByteOrder) ([]byte, error) {
	var bodyArraySizes []uint32
	bodyDry := fragments.NewDryRunSerializer(order, &bodyArraySizes)
	for _, v := range m.Body {
		Serialize(bodyDry, v)
	}
	bodySize := bodyDry.Pos()
	if bodySize > MaxMessageLength {
		return nil, fmt.Errorf("dbus: message body of %d bytes exceeds maximum message length", bodySize)
	}
	m.Header.BodySize = uint32(bodySize)

	var allArraySizes []uint32
	fullDry := fragments.NewDryRunSerializer(order, &allArraySizes)
	m.serializeHeader(fullDry)
	fullDry.Pad(8)
	for _, v := range m.Body {
		Serialize(fullDry, v)
	}
	if fullDry.Pos() > MaxMessageLength {
		return nil, fmt.Errorf("dbus: message of %d bytes exceeds maximum message length", fullDry.Pos())
	}

	buf := fragments.NewBufferSerializer(order, allArraySizes)
	m.serializeHeader(buf)
	buf.Pad(8)
	for _, v := range m.Body {
		Serialize(buf, v)
	}
	return buf.Bytes(), nil
}

func (m *Message) serializeHeader(s fragments.Serializer) {
	s.WriteByte(s.Order().Flag())
	s.WriteByte(byte(m.Header.Type))
	s.WriteByte(byte(m.Header.Flags))
	s.WriteByte(m.Header.ProtocolVersion)
	s.WriteUint32(m.Header.BodySize)
	s.WriteUint32(m.Header.Serial)

	elements := make([]DValue, len(m.Header.Fields))
	for i, f := range m.Header.Fields {
		variant, err := NewVariant(f.Value)
		if err != nil {
			panic("dbus: serializeHeader: " + err.Error())
		}
		elements[i] = &StructValue{Fields: []DValue{ByteValue(f.Code), variant}}
	}
	arr, err := NewArray(headerFieldStructType, elements)
	if err != nil {
		panic("dbus: serializeHeader: " + err.Error())
	}
	Serialize(s, arr)
}
