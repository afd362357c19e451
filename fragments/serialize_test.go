package fragments

import (
	"bytes"
	"testing"
)

func TestBufferSerializerBasics(t *testing.T) {
	var arraySizes []uint32
	s := NewBufferSerializer(LittleEndian, arraySizes)
	s.WriteByte(0x42)
	s.WriteUint16(0x0102)
	s.Pad(4)
	s.WriteUint32(0x01020304)
	want := []byte{0x42, 0x02, 0x01, 0x00, 0x04, 0x03, 0x02, 0x01}
	if got := s.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestDryRunMatchesBufferLength(t *testing.T) {
	write := func(s Serializer) {
		s.WriteByte(1)
		s.Pad(4)
		s.WriteUint64(2)
		s.WriteBytes([]byte("hello"))
	}

	var dryArraySizes []uint32
	dry := NewDryRunSerializer(LittleEndian, &dryArraySizes)
	write(dry)

	buf := NewBufferSerializer(LittleEndian, nil)
	write(buf)

	if uint64(len(buf.Bytes())) != dry.Pos() {
		t.Errorf("dry run pos %d != buffer length %d", dry.Pos(), len(buf.Bytes()))
	}
}

func TestRecordArraySizeRoundTrip(t *testing.T) {
	write := func(s Serializer) {
		s.RecordArraySize(func(arraySize uint32) uint32 {
			s.WriteUint32(arraySize)
			start := s.Pos()
			s.WriteUint32(0x11)
			s.WriteUint32(0x22)
			return uint32(s.Pos() - start)
		})
	}

	var arraySizes []uint32
	dry := NewDryRunSerializer(LittleEndian, &arraySizes)
	write(dry)
	if len(arraySizes) != 1 || arraySizes[0] != 8 {
		t.Fatalf("recorded array sizes = %v, want [8]", arraySizes)
	}

	buf := NewBufferSerializer(LittleEndian, arraySizes)
	write(buf)
	want := []byte{0x08, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00, 0x22, 0x00, 0x00, 0x00}
	if got := buf.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestOrderFlag(t *testing.T) {
	if LittleEndian.Flag() != 'l' {
		t.Errorf("LittleEndian.Flag() = %q, want 'l'", LittleEndian.Flag())
	}
	if BigEndian.Flag() != 'B' {
		t.Errorf("BigEndian.Flag() = %q, want 'B'", BigEndian.Flag())
	}
}

func TestByteOrderForFlag(t *testing.T) {
	if order, ok := ByteOrderForFlag('l'); !ok || order != LittleEndian {
		t.Errorf("ByteOrderForFlag('l') = %v, %v", order, ok)
	}
	if order, ok := ByteOrderForFlag('B'); !ok || order != BigEndian {
		t.Errorf("ByteOrderForFlag('B') = %v, %v", order, ok)
	}
	if _, ok := ByteOrderForFlag('x'); ok {
		t.Error("ByteOrderForFlag('x'): want ok=false")
	}
}
