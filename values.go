package dbus

import "fmt"

// Size limits enforced when constructing, parsing or serializing values,
// mirroring the limits the
// DBus wire format itself imposes via its u32/u8 length fields plus the
// additional sanity bounds the reference implementation applies to guard
// against hostile or corrupt input.
const (
	// MaxStringLength is the largest number of bytes a String or
	// ObjectPath value may contain. It equals MaxMessageLength, far below
	// what a u32 length prefix could in principle encode: DBus messages
	// are themselves bounded by MaxMessageLength, so no conforming string
	// ever approaches the full 32-bit range.
	MaxStringLength = 128 * 1024 * 1024
	// MaxSignatureLength is the largest number of bytes a Signature
	// value may contain, fixed by the single byte length prefix the
	// wire format uses for signatures.
	MaxSignatureLength = 255
	// MaxArrayLength is the largest number of bytes an array's encoded
	// body may occupy on the wire.
	MaxArrayLength = 64 * 1024 * 1024
	// MaxMessageLength is the largest number of bytes a complete
	// message (header plus body) may occupy.
	MaxMessageLength = 128 * 1024 * 1024
)

// DValue is a DBus value: an instance of one of the DType constructors.
// Like DType, it is a sealed tagged union; operations on DValue (such as
// [TypeOf]) are free functions that switch on the concrete type.
type DValue interface {
	isDValue()
}

type (
	ByteValue   byte
	BoolValue   bool
	Int16Value  int16
	Uint16Value uint16
	Int32Value  int32
	Uint32Value uint32
	Int64Value  int64
	Uint64Value uint64
	DoubleValue float64
	UnixFDValue uint32
)

func (ByteValue) isDValue()   {}
func (BoolValue) isDValue()   {}
func (Int16Value) isDValue()  {}
func (Uint16Value) isDValue() {}
func (Int32Value) isDValue()  {}
func (Uint32Value) isDValue() {}
func (Int64Value) isDValue()  {}
func (Uint64Value) isDValue() {}
func (DoubleValue) isDValue() {}
func (UnixFDValue) isDValue() {}

// StringValue, PathValue and SignatureValue are built with their
// respective New* constructors rather than as bare conversions, because
// each carries a wire-format length limit that a plain string does not.
type (
	StringValue    string
	PathValue      string
	SignatureValue string
)

func (StringValue) isDValue()    {}
func (PathValue) isDValue()      {}
func (SignatureValue) isDValue() {}

// NewString returns s as a StringValue, or an error if it exceeds
// MaxStringLength.
func NewString(s string) (StringValue, error) {
	if len(s) > MaxStringLength {
		return "", fmt.Errorf("dbus: string of %d bytes exceeds maximum length %d", len(s), MaxStringLength)
	}
	return StringValue(s), nil
}

// NewPath returns s as a PathValue, or an error if it exceeds
// MaxStringLength. NewPath does not validate that s follows the object
// path grammar.
func NewPath(s string) (PathValue, error) {
	if len(s) > MaxStringLength {
		return "", fmt.Errorf("dbus: object path of %d bytes exceeds maximum length %d", len(s), MaxStringLength)
	}
	return PathValue(s), nil
}

// NewSignatureValue returns s as a SignatureValue, or an error if it
// exceeds MaxSignatureLength.
func NewSignatureValue(s string) (SignatureValue, error) {
	if len(s) > MaxSignatureLength {
		return "", fmt.Errorf("dbus: signature of %d bytes exceeds maximum length %d", len(s), MaxSignatureLength)
	}
	return SignatureValue(s), nil
}

// VariantValue holds a value of dynamically-typed content: Inner's type is
// not known until runtime, and is carried alongside it on the wire as a
// signature.
type VariantValue struct {
	Inner DValue
}

func (VariantValue) isDValue() {}

// NewVariant wraps inner in a VariantValue. inner must not itself be nil.
func NewVariant(inner DValue) (VariantValue, error) {
	if inner == nil {
		return VariantValue{}, fmt.Errorf("dbus: variant must wrap a value")
	}
	return VariantValue{Inner: inner}, nil
}

// ArrayValue is a homogeneous sequence of Elements, all of type Elem.
type ArrayValue struct {
	Elem     DType
	Elements []DValue
}

func (*ArrayValue) isDValue() {}

// NewArray returns an ArrayValue holding elements, which must all have
// type elem (I2).
func NewArray(elem DType, elements []DValue) (*ArrayValue, error) {
	for i, e := range elements {
		if t := TypeOf(e); !TypesEqual(t, elem) {
			return nil, fmt.Errorf("dbus: array element %d has type %s, want %s", i, TypeSignature(t), TypeSignature(elem))
		}
	}
	return &ArrayValue{Elem: elem, Elements: elements}, nil
}

// StructValue is an ordered, heterogeneous sequence of Fields.
type StructValue struct {
	Fields []DValue
}

func (*StructValue) isDValue() {}

// NewStruct returns a StructValue holding fields. DBus permits a struct
// with zero fields only as the top-level message body; [NewStruct] does
// not itself reject one, since that restriction belongs to the message
// codec, not the value model.
func NewStruct(fields []DValue) *StructValue {
	return &StructValue{Fields: fields}
}

// DictEntryValue is a (Key, Value) pair, found only inside an
// ArrayValue whose Elem is a DictEntryType.
type DictEntryValue struct {
	Key   DValue
	Value DValue
}

func (*DictEntryValue) isDValue() {}

// NewDictEntry returns a DictEntryValue, or an error if key's type is not
// a basic type (I3).
func NewDictEntry(key, value DValue) (*DictEntryValue, error) {
	if t := TypeOf(key); !IsBasic(t) {
		return nil, fmt.Errorf("dbus: dict-entry key type %s is not a basic type", TypeSignature(t))
	}
	return &DictEntryValue{Key: key, Value: value}, nil
}

// TypeOf returns v's DBus type.
func TypeOf(v DValue) DType {
	switch v := v.(type) {
	case ByteValue:
		return TByte
	case BoolValue:
		return TBool
	case Int16Value:
		return TInt16
	case Uint16Value:
		return TUint16
	case Int32Value:
		return TInt32
	case Uint32Value:
		return TUint32
	case Int64Value:
		return TInt64
	case Uint64Value:
		return TUint64
	case DoubleValue:
		return TDouble
	case UnixFDValue:
		return TUnixFD
	case StringValue:
		return TString
	case PathValue:
		return TPath
	case SignatureValue:
		return TSignature
	case VariantValue:
		return TVariant
	case *ArrayValue:
		return &ArrayType{Elem: v.Elem}
	case *StructValue:
		fields := make([]DType, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = TypeOf(f)
		}
		return &StructType{Fields: fields}
	case *DictEntryValue:
		return &DictEntryType{Key: TypeOf(v.Key), Value: TypeOf(v.Value)}
	default:
		panic(fmt.Sprintf("dbus: TypeOf: unknown DValue %T", v))
	}
}
