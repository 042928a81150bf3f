// Package mem provides the backing-storage abstraction that the cache model
// fetches lines from and writes lines back to.
package mem

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when an access falls beyond a storage's capacity.
var ErrOutOfRange = errors.New("access beyond storage capacity")

// A BackingStore is the next level of the memory hierarchy below a cache.
//
// The cache calls Read on a fill and Write on a write-back or write-through,
// always one full line at a time, with the address pre-aligned to a line
// boundary.
type BackingStore interface {
	Read(addr uint64, n uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
}

const pageSize = 4096

// A Storage is a sparse in-memory byte store. Pages are allocated lazily, so
// a large address space costs memory only where it is actually touched.
//
// Storage serves both as the default backing store of a cache model and as
// the cache's internal line data array.
type Storage struct {
	capacity uint64
	pages    map[uint64][]byte
}

// NewStorage creates a Storage holding capacity bytes.
func NewStorage(capacity uint64) *Storage {
	return &Storage{
		capacity: capacity,
		pages:    make(map[uint64][]byte),
	}
}

// Capacity returns the number of bytes the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) page(addr uint64) ([]byte, error) {
	if addr >= s.capacity {
		return nil, fmt.Errorf("%w: 0x%x >= 0x%x",
			ErrOutOfRange, addr, s.capacity)
	}

	base := addr / pageSize * pageSize
	p, ok := s.pages[base]
	if !ok {
		p = make([]byte, pageSize)
		s.pages[base] = p
	}

	return p, nil
}

// Read returns n bytes starting at addr. The range may span pages.
func (s *Storage) Read(addr uint64, n uint64) ([]byte, error) {
	if n > 0 && addr+n > s.capacity {
		return nil, fmt.Errorf("%w: [0x%x, 0x%x) exceeds 0x%x",
			ErrOutOfRange, addr, addr+n, s.capacity)
	}

	out := make([]byte, n)
	read := uint64(0)

	for read < n {
		curr := addr + read
		p, err := s.page(curr)
		if err != nil {
			return nil, err
		}

		inPage := curr % pageSize
		chunk := min(pageSize-inPage, n-read)
		copy(out[read:read+chunk], p[inPage:inPage+chunk])
		read += chunk
	}

	return out, nil
}

// Write stores data starting at addr. The range may span pages.
func (s *Storage) Write(addr uint64, data []byte) error {
	n := uint64(len(data))
	if n > 0 && addr+n > s.capacity {
		return fmt.Errorf("%w: [0x%x, 0x%x) exceeds 0x%x",
			ErrOutOfRange, addr, addr+n, s.capacity)
	}

	written := uint64(0)

	for written < n {
		curr := addr + written
		p, err := s.page(curr)
		if err != nil {
			return err
		}

		inPage := curr % pageSize
		chunk := min(pageSize-inPage, n-written)
		copy(p[inPage:inPage+chunk], data[written:written+chunk])
		written += chunk
	}

	return nil
}
