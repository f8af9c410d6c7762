package code

import (
	"encoding/binary"
	"math"

	"github.com/Iris-proj/iris-vm/internal/value"
)

// Chunk is an append-only bytecode builder: a growing code buffer plus
// a constant pool, with width-dispatched Write* methods for each
// immediate size an opcode might carry.
type Chunk struct {
	Code      []byte
	Constants []value.Value
}

// NewChunk returns an empty Chunk ready for assembly.
func NewChunk() *Chunk {
	return &Chunk{}
}

// WriteOpcode appends a single opcode octet and returns its offset.
func (c *Chunk) WriteOpcode(op Opcode) int {
	c.Code = append(c.Code, byte(op))
	return len(c.Code) - 1
}

// Write8 appends a raw byte (u8/i8 immediate).
func (c *Chunk) Write8(b byte) {
	c.Code = append(c.Code, b)
}

// Write16 appends a big-endian u16/i16 immediate, per spec.md §4.1.
func (c *Chunk) Write16(v uint16) {
	c.Code = append(c.Code, byte(v>>8), byte(v))
}

// Write32 appends a big-endian u32/i32 immediate.
func (c *Chunk) Write32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	c.Code = append(c.Code, buf[:]...)
}

// Write64 appends a big-endian u64/i64 immediate.
func (c *Chunk) Write64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	c.Code = append(c.Code, buf[:]...)
}

// WriteF32 appends a big-endian IEEE-754 single-precision immediate.
func (c *Chunk) WriteF32(f float32) {
	c.Write32(math.Float32bits(f))
}

// WriteF64 appends a big-endian IEEE-754 double-precision immediate.
func (c *Chunk) WriteF64(f float64) {
	c.Write64(math.Float64bits(f))
}

// Patch16 overwrites a previously reserved 16-bit slot at offset — used
// to back-patch forward jump targets once the destination is known.
func (c *Chunk) Patch16(offset int, v uint16) {
	c.Code[offset] = byte(v >> 8)
	c.Code[offset+1] = byte(v)
}

// AddConstant appends v to the constant pool and returns its index.
// The assembler is responsible for choosing Constant8 vs Constant16
// based on the returned index (spec.md §4.1: "the assembler selects
// the narrowest form that fits").
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// ReadU16 decodes a big-endian u16 immediate at offset — shared by the
// interpreter and JIT block-recovery pass so both agree on encoding.
func ReadU16(code []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(code[offset : offset+2])
}

// ReadU32 decodes a big-endian u32 immediate at offset.
func ReadU32(code []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(code[offset : offset+4])
}

// ReadU64 decodes a big-endian u64 immediate at offset.
func ReadU64(code []byte, offset int) uint64 {
	return binary.BigEndian.Uint64(code[offset : offset+8])
}

// ReadF32 decodes a big-endian f32 immediate at offset.
func ReadF32(code []byte, offset int) float32 {
	return math.Float32frombits(ReadU32(code, offset))
}

// ReadF64 decodes a big-endian f64 immediate at offset.
func ReadF64(code []byte, offset int) float64 {
	return math.Float64frombits(ReadU64(code, offset))
}
