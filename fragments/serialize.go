package fragments

// Serializer is the write-side counterpart of Cont: the dbus package's
// value serializer writes a value's wire shape to a Serializer without
// needing to know whether it is measuring size or producing real bytes.
//
// Serialization is infallible for any well-typed value, so unlike Cont's
// Step, none of these methods return an error.
type Serializer interface {
	Order() ByteOrder
	Pos() uint64
	WriteByte(b byte)
	WriteUint16(v uint16)
	WriteUint32(v uint32)
	WriteUint64(v uint64)
	WriteBytes(bs []byte)
	// Pad writes zero bytes until Pos is a multiple of align.
	Pad(align int)
	// RecordArraySize runs body, which must write the array's u32
	// length field (using the arraySize value body is handed), then
	// the element alignment padding, then the elements themselves, and
	// return the number of bytes written after that padding. On a
	// dry run, arraySize is a placeholder and the real length is
	// recorded for later replay; on a buffer pass, arraySize is the
	// real, previously-recorded length.
	RecordArraySize(body func(arraySize uint32) uint32)
}

// DryRunSerializer only measures size. Each RecordArraySize call still
// runs body for real, so that nested arrays and variants are measured
// correctly, but discards the bytes it would have written.
type DryRunSerializer struct {
	order      ByteOrder
	pos        uint64
	arraySizes *[]uint32
}

// NewDryRunSerializer returns a Serializer that measures the byte length a
// value would serialize to under order, recording each array's computed
// length (in visiting order) into *arraySizes for later replay by a
// [NewBufferSerializer].
func NewDryRunSerializer(order ByteOrder, arraySizes *[]uint32) *DryRunSerializer {
	return &DryRunSerializer{order: order, arraySizes: arraySizes}
}

func (d *DryRunSerializer) Order() ByteOrder   { return d.order }
func (d *DryRunSerializer) Pos() uint64        { return d.pos }
func (d *DryRunSerializer) WriteByte(byte)     { d.pos++ }
func (d *DryRunSerializer) WriteUint16(uint16) { d.pos += 2 }
func (d *DryRunSerializer) WriteUint32(uint32) { d.pos += 4 }
func (d *DryRunSerializer) WriteUint64(uint64) { d.pos += 8 }
func (d *DryRunSerializer) WriteBytes(bs []byte) {
	d.pos += uint64(len(bs))
}
func (d *DryRunSerializer) Pad(align int) {
	d.pos += PaddingLen(d.pos, align)
}

func (d *DryRunSerializer) RecordArraySize(body func(uint32) uint32) {
	idx := len(*d.arraySizes)
	*d.arraySizes = append(*d.arraySizes, 0)
	(*d.arraySizes)[idx] = body(0xDEADBEEF)
}

// BufferSerializer writes real bytes, pulling each array's precomputed
// length from arraySizes in the same order a matching DryRunSerializer
// pass recorded them.
type BufferSerializer struct {
	order      ByteOrder
	buf        []byte
	arraySizes []uint32
	arrayIdx   int
}

// NewBufferSerializer returns a Serializer that writes real bytes under
// order, replaying array lengths from arraySizes (as produced by a prior
// [NewDryRunSerializer] pass over the same value, in the same order).
func NewBufferSerializer(order ByteOrder, arraySizes []uint32) *BufferSerializer {
	return &BufferSerializer{order: order, arraySizes: arraySizes}
}

func (b *BufferSerializer) Order() ByteOrder { return b.order }
func (b *BufferSerializer) Pos() uint64      { return uint64(len(b.buf)) }
func (b *BufferSerializer) WriteByte(v byte) { b.buf = append(b.buf, v) }
func (b *BufferSerializer) WriteUint16(v uint16) {
	b.buf = b.order.AppendUint16(b.buf, v)
}
func (b *BufferSerializer) WriteUint32(v uint32) {
	b.buf = b.order.AppendUint32(b.buf, v)
}
func (b *BufferSerializer) WriteUint64(v uint64) {
	b.buf = b.order.AppendUint64(b.buf, v)
}
func (b *BufferSerializer) WriteBytes(bs []byte) {
	b.buf = append(b.buf, bs...)
}
func (b *BufferSerializer) Pad(align int) {
	n := PaddingLen(b.Pos(), align)
	for i := uint64(0); i < n; i++ {
		b.buf = append(b.buf, 0)
	}
}

func (b *BufferSerializer) RecordArraySize(body func(uint32) uint32) {
	size := b.arraySizes[b.arrayIdx]
	b.arrayIdx++
	body(size)
}

// Bytes returns the accumulated output.
func (b *BufferSerializer) Bytes() []byte { return b.buf }
