package code

import (
	"testing"

	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/stretchr/testify/require"
)

func TestChunkWriteAndReadImmediates(t *testing.T) {
	c := NewChunk()
	c.WriteOpcode(OpLoadImmI32)
	c.Write32(uint32(int32(-7)))
	c.WriteOpcode(OpLoadImmF64)
	c.WriteF64(3.5)

	require.Equal(t, int32(-7), int32(ReadU32(c.Code, 1)))
	require.Equal(t, 3.5, ReadF64(c.Code, 1+4+1))
}

func TestChunkPatch16BackpatchesJumpTarget(t *testing.T) {
	c := NewChunk()
	c.WriteOpcode(OpJump)
	patchAt := len(c.Code)
	c.Write16(0) // placeholder
	targetOffset := len(c.Code)

	c.Patch16(patchAt, uint16(targetOffset))
	require.Equal(t, uint16(targetOffset), ReadU16(c.Code, patchAt))
}

func TestAddConstantReturnsIndex(t *testing.T) {
	c := NewChunk()
	i0 := c.AddConstant(value.I32(1))
	i1 := c.AddConstant(value.NewStr("hi"))
	require.Equal(t, 0, i0)
	require.Equal(t, 1, i1)
	require.Len(t, c.Constants, 2)
}
