package dbus

import (
	"fmt"
	"strings"

	"github.com/creachadair/mds/mapset"
)

// DType is a DBus type: one of the 17 constructors in the DBus type
// system. It is a sealed tagged union, not an open interface — the only
// implementations are the ones in this file. Operations on DType are free
// functions ([Alignment], [TypeSignature], [IsBasic]) that switch on the
// concrete type, rather than methods, so that adding an operation never
// requires touching every variant's declaration.
type DType interface {
	isDType()
}

// Leaf types have no payload and exactly one shared instance each; there
// is never a reason to allocate a second one.
type (
	byteType      struct{}
	boolType      struct{}
	int16Type     struct{}
	uint16Type    struct{}
	int32Type     struct{}
	uint32Type    struct{}
	int64Type     struct{}
	uint64Type    struct{}
	doubleType    struct{}
	unixFDType    struct{}
	stringType    struct{}
	pathType      struct{}
	signatureType struct{}
	variantType   struct{}
)

func (*byteType) isDType()      {}
func (*boolType) isDType()      {}
func (*int16Type) isDType()     {}
func (*uint16Type) isDType()    {}
func (*int32Type) isDType()     {}
func (*uint32Type) isDType()    {}
func (*int64Type) isDType()     {}
func (*uint64Type) isDType()    {}
func (*doubleType) isDType()    {}
func (*unixFDType) isDType()    {}
func (*stringType) isDType()    {}
func (*pathType) isDType()      {}
func (*signatureType) isDType() {}
func (*variantType) isDType()   {}

// The 14 leaf type constants. There is exactly one instance of each; two
// DType values are the same leaf type iff they are the same one of these
// pointers.
var (
	TByte      DType = &byteType{}
	TBool      DType = &boolType{}
	TInt16     DType = &int16Type{}
	TUint16    DType = &uint16Type{}
	TInt32     DType = &int32Type{}
	TUint32    DType = &uint32Type{}
	TInt64     DType = &int64Type{}
	TUint64    DType = &uint64Type{}
	TDouble    DType = &doubleType{}
	TUnixFD    DType = &unixFDType{}
	TString    DType = &stringType{}
	TPath      DType = &pathType{}
	TSignature DType = &signatureType{}
	TVariant   DType = &variantType{}
)

// ArrayType is the type of a homogeneous sequence of Elem.
type ArrayType struct {
	Elem DType
}

func (*ArrayType) isDType() {}

// StructType is the type of an ordered, heterogeneous sequence of Fields.
type StructType struct {
	Fields []DType
}

func (*StructType) isDType() {}

// DictEntryType is the type of a (key, value) pair, as found inside an
// Array(DictEntry) that represents a DBus dictionary. Key must be a basic
// (leaf) type; see [IsBasic].
type DictEntryType struct {
	Key   DType
	Value DType
}

func (*DictEntryType) isDType() {}

// Alignment returns t's required alignment, a power of two, measured from
// the absolute start of the enclosing message.
func Alignment(t DType) int {
	switch t.(type) {
	case *byteType, *signatureType:
		return 1
	case *int16Type, *uint16Type:
		return 2
	case *boolType, *int32Type, *uint32Type, *unixFDType, *stringType, *pathType, *ArrayType:
		return 4
	case *int64Type, *uint64Type, *doubleType, *StructType, *DictEntryType:
		return 8
	case *variantType:
		return 1
	default:
		panic(fmt.Sprintf("dbus: Alignment: unknown DType %T", t))
	}
}

// TypeSignature returns t's textual signature, e.g. "a{sv}" for an
// Array(DictEntry(String, Variant)).
func TypeSignature(t DType) string {
	switch t := t.(type) {
	case *byteType:
		return "y"
	case *boolType:
		return "b"
	case *int16Type:
		return "n"
	case *uint16Type:
		return "q"
	case *int32Type:
		return "i"
	case *uint32Type:
		return "u"
	case *int64Type:
		return "x"
	case *uint64Type:
		return "t"
	case *doubleType:
		return "d"
	case *unixFDType:
		return "h"
	case *stringType:
		return "s"
	case *pathType:
		return "o"
	case *signatureType:
		return "g"
	case *variantType:
		return "v"
	case *ArrayType:
		return "a" + TypeSignature(t.Elem)
	case *StructType:
		var b strings.Builder
		b.WriteByte('(')
		for _, f := range t.Fields {
			b.WriteString(TypeSignature(f))
		}
		b.WriteByte(')')
		return b.String()
	case *DictEntryType:
		return "{" + TypeSignature(t.Key) + TypeSignature(t.Value) + "}"
	default:
		panic(fmt.Sprintf("dbus: TypeSignature: unknown DType %T", t))
	}
}

// typeKind identifies a DType's variant without reference to any
// particular instance, so that basic-type membership can be tested with a
// plain set instead of a type switch at every call site.
type typeKind int

const (
	kindByte typeKind = iota
	kindBool
	kindInt16
	kindUint16
	kindInt32
	kindUint32
	kindInt64
	kindUint64
	kindDouble
	kindUnixFD
	kindString
	kindPath
	kindSignature
	kindVariant
	kindArray
	kindStruct
	kindDictEntry
)

func kindOf(t DType) typeKind {
	switch t.(type) {
	case *byteType:
		return kindByte
	case *boolType:
		return kindBool
	case *int16Type:
		return kindInt16
	case *uint16Type:
		return kindUint16
	case *int32Type:
		return kindInt32
	case *uint32Type:
		return kindUint32
	case *int64Type:
		return kindInt64
	case *uint64Type:
		return kindUint64
	case *doubleType:
		return kindDouble
	case *unixFDType:
		return kindUnixFD
	case *stringType:
		return kindString
	case *pathType:
		return kindPath
	case *signatureType:
		return kindSignature
	case *variantType:
		return kindVariant
	case *ArrayType:
		return kindArray
	case *StructType:
		return kindStruct
	case *DictEntryType:
		return kindDictEntry
	default:
		panic(fmt.Sprintf("dbus: kindOf: unknown DType %T", t))
	}
}

// basicKinds are the 13 leaf kinds that may appear as a dict-entry key.
// Variant is a leaf but is explicitly excluded by the DBus spec.
var basicKinds = mapset.New(
	kindByte, kindBool, kindInt16, kindUint16, kindInt32, kindUint32,
	kindInt64, kindUint64, kindDouble, kindUnixFD, kindString, kindPath,
	kindSignature,
)

// IsBasic reports whether t may be used as a dict-entry key: any leaf type
// except Variant.
func IsBasic(t DType) bool {
	return basicKinds.Has(kindOf(t))
}

// TypesEqual reports whether a and b denote the same DBus type. Leaf types
// compare by identity (there is only one instance of each); composite
// types compare structurally.
func TypesEqual(a, b DType) bool {
	switch a := a.(type) {
	case *ArrayType:
		b, ok := b.(*ArrayType)
		return ok && TypesEqual(a.Elem, b.Elem)
	case *StructType:
		b, ok := b.(*StructType)
		if !ok || len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !TypesEqual(a.Fields[i], b.Fields[i]) {
				return false
			}
		}
		return true
	case *DictEntryType:
		b, ok := b.(*DictEntryType)
		return ok && TypesEqual(a.Key, b.Key) && TypesEqual(a.Value, b.Value)
	default:
		return a == b
	}
}

// TypeArena owns composite (array/struct/dict-entry) type nodes allocated
// while parsing a signature. Each Alloc* call hands back a stable pointer:
// growing the arena's internal slices never moves an already-handed-out
// node, since each node is its own heap allocation. Leaf types never need
// an arena; they are the shared TByte/TBool/... constants.
//
// Struct types are deliberately never interned: two structurally identical
// struct types allocated separately remain distinct DType values, because
// DBus requires field-type identity, not mere structural equality, when
// deciding whether two struct types match (see [TypesEqual] for the
// structural comparison used elsewhere).
type TypeArena struct {
	arrays      []*ArrayType
	structs     []*StructType
	dictEntries []*DictEntryType
}

// AllocArray allocates a new Array(elem) type in the arena.
func (a *TypeArena) AllocArray(elem DType) *ArrayType {
	t := &ArrayType{Elem: elem}
	a.arrays = append(a.arrays, t)
	return t
}

// AllocStruct allocates a new Struct(fields...) type in the arena.
func (a *TypeArena) AllocStruct(fields []DType) *StructType {
	t := &StructType{Fields: fields}
	a.structs = append(a.structs, t)
	return t
}

// AllocDictEntry allocates a new DictEntry(key, value) type in the arena.
// It returns an error if key is not a basic type (I3).
func (a *TypeArena) AllocDictEntry(key, value DType) (*DictEntryType, error) {
	if !IsBasic(key) {
		return nil, fmt.Errorf("dbus: dict-entry key type %s is not a basic type", TypeSignature(key))
	}
	t := &DictEntryType{Key: key, Value: value}
	a.dictEntries = append(a.dictEntries, t)
	return t, nil
}

// CloneType deep-copies t's composite nodes into arena, leaving leaf
// references pointing at the shared constants. It is how a type parsed
// from a variant's signature (whose continuation-owned arena is about to
// be dropped) is retained for the lifetime of the constructed value.
func CloneType(arena *TypeArena, t DType) DType {
	switch t := t.(type) {
	case *ArrayType:
		return arena.AllocArray(CloneType(arena, t.Elem))
	case *StructType:
		fields := make([]DType, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = CloneType(arena, f)
		}
		return arena.AllocStruct(fields)
	case *DictEntryType:
		k := CloneType(arena, t.Key)
		v := CloneType(arena, t.Value)
		dt, err := arena.AllocDictEntry(k, v)
		if err != nil {
			// CloneType only ever duplicates an already-valid type, so a
			// well-formed source can't produce an invalid dict-entry.
			panic("dbus: CloneType: " + err.Error())
		}
		return dt
	default:
		return t
	}
}
