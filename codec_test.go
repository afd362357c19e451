package dbus

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dbuswire/dbuswire/fragments"
)

func serializeValue(order fragments.ByteOrder, v DValue) []byte {
	var arraySizes []uint32
	dry := fragments.NewDryRunSerializer(order, &arraySizes)
	Serialize(dry, v)
	buf := fragments.NewBufferSerializer(order, arraySizes)
	Serialize(buf, v)
	return buf.Bytes()
}

func parseValue(t *testing.T, order fragments.ByteOrder, typ DType, wire []byte) DValue {
	t.Helper()
	var got DValue
	p := fragments.NewParser(ParseObject(order, typ, func(st *fragments.State, v DValue) (fragments.Cont, error) {
		got = v
		return fragments.Stop, nil
	}))
	if err := feedInChunks(p, wire); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !p.Done() {
		t.Fatalf("parser not done after consuming all %d bytes", len(wire))
	}
	return got
}

// feedInChunks drives p across as many Feed calls as its reported
// MinRequired/MaxRequired bounds allow, always taking the minimum chunk,
// to exercise incremental delivery rather than one big Feed.
func feedInChunks(p *fragments.Parser, buf []byte) error {
	for !p.Done() {
		n := int(p.MinRequired())
		if n == 0 {
			n = 1
		}
		if n > len(buf) {
			n = len(buf)
		}
		if err := p.Feed(buf[:n]); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

var dvalueCmpOpts = cmp.Options{
	cmpopts.EquateNaNs(),
}

func TestSeedByteLittleEndian(t *testing.T) {
	v := ByteValue(0x42)
	wire := serializeValue(fragments.LittleEndian, v)
	if want := []byte{0x42}; !bytes.Equal(wire, want) {
		t.Fatalf("serialize: got % x, want % x", wire, want)
	}
	got := parseValue(t, fragments.LittleEndian, TByte, wire)
	if got != v {
		t.Errorf("parse round trip: got %v, want %v", got, v)
	}
}

func TestSeedUint32BothEndian(t *testing.T) {
	v := Uint32Value(0x01020304)
	le := serializeValue(fragments.LittleEndian, v)
	if want := []byte{0x04, 0x03, 0x02, 0x01}; !bytes.Equal(le, want) {
		t.Errorf("LE serialize: got % x, want % x", le, want)
	}
	be := serializeValue(fragments.BigEndian, v)
	if want := []byte{0x01, 0x02, 0x03, 0x04}; !bytes.Equal(be, want) {
		t.Errorf("BE serialize: got % x, want % x", be, want)
	}
}

func TestSeedEmptyByteArray(t *testing.T) {
	arr, err := NewArray(TByte, nil)
	if err != nil {
		t.Fatal(err)
	}
	wire := serializeValue(fragments.LittleEndian, arr)
	want := []byte{0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(wire, want) {
		t.Errorf("got % x, want % x", wire, want)
	}
}

func TestSeedUint32Array(t *testing.T) {
	arr, err := NewArray(TUint32, []DValue{Uint32Value(0x11), Uint32Value(0x22)})
	if err != nil {
		t.Fatal(err)
	}
	wire := serializeValue(fragments.LittleEndian, arr)
	want := []byte{
		0x08, 0x00, 0x00, 0x00,
		0x11, 0x00, 0x00, 0x00,
		0x22, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(wire, want) {
		t.Errorf("got % x, want % x", wire, want)
	}
}

func TestSeedStructBytePad3Uint32(t *testing.T) {
	s := NewStruct([]DValue{ByteValue(0x01), Uint32Value(0x02)})
	wire := serializeValue(fragments.LittleEndian, s)
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	if !bytes.Equal(wire, want) {
		t.Errorf("got % x, want % x", wire, want)
	}
}

func TestSeedVariantUint32(t *testing.T) {
	variant, err := NewVariant(Uint32Value(0x7F))
	if err != nil {
		t.Fatal(err)
	}
	wire := serializeValue(fragments.LittleEndian, variant)
	// Signature length, 'u', NUL end at offset 3; one pad byte aligns the
	// u32 to offset 4.
	want := []byte{0x01, 0x75, 0x00, 0x00, 0x7F, 0x00, 0x00, 0x00}
	if !bytes.Equal(wire, want) {
		t.Errorf("got % x, want % x", wire, want)
	}
}

func TestRoundTripAllBasicTypes(t *testing.T) {
	values := []DValue{
		ByteValue(0xAB),
		BoolValue(true),
		BoolValue(false),
		Int16Value(-1234),
		Uint16Value(0xBEEF),
		Int32Value(-123456),
		Uint32Value(0xDEADBEEF),
		Int64Value(-123456789012),
		Uint64Value(0xCAFEBABEDEADBEEF),
		DoubleValue(3.14159),
		UnixFDValue(7),
		StringValue("hello, world"),
		PathValue("/org/freedesktop/DBus"),
		SignatureValue("a{sv}"),
	}
	mustVariant := func(v DValue) VariantValue {
		vv, err := NewVariant(v)
		if err != nil {
			t.Fatal(err)
		}
		return vv
	}
	values = append(values, mustVariant(ByteValue(9)))

	arr, err := NewArray(TInt32, []DValue{Int32Value(1), Int32Value(2), Int32Value(3)})
	if err != nil {
		t.Fatal(err)
	}
	values = append(values, arr)

	s := NewStruct([]DValue{ByteValue(1), StringValue("x"), Int64Value(-9)})
	values = append(values, s)

	entry, err := NewDictEntry(StringValue("k"), Int32Value(42))
	if err != nil {
		t.Fatal(err)
	}
	values = append(values, entry)

	for _, order := range []fragments.ByteOrder{fragments.LittleEndian, fragments.BigEndian} {
		for _, v := range values {
			typ := TypeOf(v)
			wire := serializeValue(order, v)
			got := parseValue(t, order, typ, wire)
			if diff := cmp.Diff(v, got, dvalueCmpOpts); diff != "" {
				t.Errorf("round trip mismatch for %s under %v (-want +got):\n%s", TypeSignature(typ), order, diff)
			}
			// Re-serializing the parsed value must be byte-identical.
			again := serializeValue(order, got)
			if !bytes.Equal(wire, again) {
				t.Errorf("re-serialize mismatch for %s: got % x, want % x", TypeSignature(typ), again, wire)
			}
		}
	}
}

func TestParseRejectsNonBooleanValue(t *testing.T) {
	wire := []byte{0x02, 0x00, 0x00, 0x00}
	p := fragments.NewParser(ParseObject(fragments.LittleEndian, TBool, func(st *fragments.State, v DValue) (fragments.Cont, error) {
		return fragments.Stop, nil
	}))
	err := feedInChunks(p, wire)
	if err == nil {
		t.Fatal("parsing bool value 2: want error, got nil")
	}
}

func TestParseRejectsNonZeroPadding(t *testing.T) {
	// byte then pad-to-4 with a non-zero pad byte, then uint32
	wire := []byte{0x01, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	typ := &StructType{Fields: []DType{TByte, TUint32}}
	p := fragments.NewParser(ParseObject(fragments.LittleEndian, typ, func(st *fragments.State, v DValue) (fragments.Cont, error) {
		return fragments.Stop, nil
	}))
	if err := feedInChunks(p, wire); err == nil {
		t.Fatal("parsing struct with non-zero padding: want error, got nil")
	}
}

func TestParseArrayLengthMismatch(t *testing.T) {
	// u32 length of 2 can't hold a whole 4-byte element; the element parse
	// overruns endPos, which must be reported as a length mismatch rather
	// than silently accepted.
	wire := []byte{0x02, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00}
	p := fragments.NewParser(ParseObject(fragments.LittleEndian, &ArrayType{Elem: TUint32}, func(st *fragments.State, v DValue) (fragments.Cont, error) {
		return fragments.Stop, nil
	}))
	err := feedInChunks(p, wire)
	if err == nil {
		t.Fatal("parsing array with length 2 holding one 4-byte element: want error, got nil")
	}
	if !strings.Contains(err.Error(), "Incorrect array length") {
		t.Errorf("error = %q, want substring %q", err.Error(), "Incorrect array length")
	}
}

func TestAddLengthOverflow(t *testing.T) {
	if sum, ok := addLength(math.MaxUint64-2, 5); ok {
		t.Fatalf("addLength(MaxUint64-2, 5) = (%d, %v), want ok=false", sum, ok)
	}
	if sum, ok := addLength(10, 20); !ok || sum != 30 {
		t.Fatalf("addLength(10, 20) = (%d, %v), want (30, true)", sum, ok)
	}
}

func TestArrayEndPosOverflow(t *testing.T) {
	if endPos, ok := arrayEndPos(math.MaxUint64-2, 5); ok {
		t.Fatalf("arrayEndPos(MaxUint64-2, 5) = (%d, %v), want ok=false", endPos, ok)
	}
	if endPos, ok := arrayEndPos(10, 20); !ok || endPos != 30 {
		t.Fatalf("arrayEndPos(10, 20) = (%d, %v), want (30, true)", endPos, ok)
	}
}

func TestArrayLengthOverflowErrorText(t *testing.T) {
	// arrayEndPos is the guard parseArray consults before building
	// parseArrayElements. This checks only that parseErrorAt carries the
	// message parseArray reports when that guard fails; parseArray itself
	// is not driven here, since driving a real Parser to a near-MaxUint64
	// stream position is not something a Feed-based test can do.
	st := &fragments.State{}
	err := parseErrorAt(st, "array length integer overflow")
	if !strings.Contains(err.Error(), "array length integer overflow") {
		t.Errorf("error = %q, want substring %q", err.Error(), "array length integer overflow")
	}
}

func TestParseVariantRejectsSignatureLengthMismatch(t *testing.T) {
	// Claims a 2-byte embedded signature, but "i" completes a whole type
	// after just 1 byte: the grammar's end-position check must reject this
	// rather than silently reading on for a second, nonexistent type byte.
	wire := []byte{0x02, 'i'}
	p := fragments.NewParser(parseVariant(fragments.LittleEndian, func(st *fragments.State, v DValue) (fragments.Cont, error) {
		return fragments.Stop, nil
	}))
	err := feedInChunks(p, wire)
	if err == nil {
		t.Fatal("variant claiming signature length 2 but completing after 1 byte: want error, got nil")
	}
	if !strings.Contains(err.Error(), "Incorrect variant signature length") {
		t.Errorf("error = %q, want substring %q", err.Error(), "Incorrect variant signature length")
	}
}
