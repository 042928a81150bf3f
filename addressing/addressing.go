// Package addressing splits flat memory addresses into the tag, index, and
// offset fields that a set-associative cache uses to locate a line.
package addressing

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrInvalidAddress is returned when an address does not fit in the
// configured address width.
var ErrInvalidAddress = errors.New("invalid address")

// Fields is the decomposition of one address.
//
// The bit layout, from the least significant bit up, is offset, then index,
// then tag. The tag occupies all remaining high bits.
type Fields struct {
	Tag    uint64
	Index  uint64
	Offset uint64
}

// A Layout knows how many bits each field of an address occupies.
type Layout struct {
	addressWidth int
	offsetBits   int
	indexBits    int
}

// MakeLayout derives a Layout from the cache geometry. The line size and the
// number of sets must be powers of two, and the offset and index fields
// together must leave at least one tag bit.
func MakeLayout(
	lineSizeBytes uint64,
	numSets uint64,
	addressWidth int,
) (Layout, error) {
	offsetBits, ok := log2(lineSizeBytes)
	if !ok {
		return Layout{}, fmt.Errorf(
			"line size %d is not a power of two", lineSizeBytes)
	}

	indexBits, ok := log2(numSets)
	if !ok {
		return Layout{}, fmt.Errorf(
			"set count %d is not a power of two", numSets)
	}

	if addressWidth < 1 || addressWidth > 64 {
		return Layout{}, fmt.Errorf(
			"address width %d is not in [1, 64]", addressWidth)
	}

	if offsetBits+indexBits >= addressWidth {
		return Layout{}, fmt.Errorf(
			"offset bits (%d) and index bits (%d) leave no tag bits "+
				"in a %d-bit address",
			offsetBits, indexBits, addressWidth)
	}

	return Layout{
		addressWidth: addressWidth,
		offsetBits:   offsetBits,
		indexBits:    indexBits,
	}, nil
}

// AddressWidth returns the total number of address bits.
func (l Layout) AddressWidth() int {
	return l.addressWidth
}

// OffsetBits returns the number of bits in the offset field.
func (l Layout) OffsetBits() int {
	return l.offsetBits
}

// IndexBits returns the number of bits in the index field.
func (l Layout) IndexBits() int {
	return l.indexBits
}

// TagBits returns the number of bits in the tag field.
func (l Layout) TagBits() int {
	return l.addressWidth - l.offsetBits - l.indexBits
}

// Decode splits an address into its fields. It fails with ErrInvalidAddress
// when the address does not fit in the layout's address width.
func (l Layout) Decode(addr uint64) (Fields, error) {
	if l.addressWidth < 64 && addr >= uint64(1)<<l.addressWidth {
		return Fields{}, fmt.Errorf(
			"%w: 0x%x exceeds %d-bit address space",
			ErrInvalidAddress, addr, l.addressWidth)
	}

	f := Fields{
		Offset: addr & (uint64(1)<<l.offsetBits - 1),
		Index:  addr >> l.offsetBits & (uint64(1)<<l.indexBits - 1),
		Tag:    addr >> (l.offsetBits + l.indexBits),
	}

	return f, nil
}

// Reconstruct is the exact inverse of Decode.
func (l Layout) Reconstruct(f Fields) uint64 {
	return f.Offset |
		f.Index<<l.offsetBits |
		f.Tag<<(l.offsetBits+l.indexBits)
}

// LineAddr aligns an address down to the boundary of the line that holds it.
func (l Layout) LineAddr(addr uint64) uint64 {
	return addr >> l.offsetBits << l.offsetBits
}

func log2(v uint64) (int, bool) {
	if v == 0 || bits.OnesCount64(v) != 1 {
		return 0, false
	}

	return bits.TrailingZeros64(v), true
}
