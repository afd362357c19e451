// Package dbus implements the D-Bus wire format: parsing and
// serializing messages and the values inside them, without depending on
// a running message bus or any particular transport.
//
// A value is a [DValue], one of the fixed set of D-Bus type
// constructors (see [DType]): the 13 basic types ([ByteValue] through
// [SignatureValue]), [VariantValue], and the three composite kinds
// ([ArrayValue], [StructValue], [DictEntryValue]). Both interfaces are
// sealed: the only implementations are the ones declared in this
// package, and every operation on them ([Alignment], [TypeSignature],
// [TypeOf], [CloneType], ...) is a free function rather than a method,
// so that a D-Bus type switch lives in one place instead of being
// smeared across 17 method sets.
//
// [ParseMessage] parses a complete [Message] from a byte stream fed
// incrementally through the [fragments.Parser] it returns; [Message.Serialize]
// produces the reverse encoding. [ParseSignature] and [ParseSingleType]
// parse the small string grammar used for a message's SIGNATURE header
// field and for a variant's embedded signature, respectively.
package dbus
