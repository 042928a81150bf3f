package cache

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/sarchlab/cachemodel/addressing"
)

// ErrInvalidConfig is returned when a cache is built from a malformed
// configuration.
var ErrInvalidConfig = errors.New("invalid cache config")

// WritePolicy selects when stores reach the backing store.
type WritePolicy string

// Supported write policies.
const (
	WriteThrough WritePolicy = "write-through"
	WriteBack    WritePolicy = "write-back"
)

// AllocatePolicy selects whether store misses fill the cache.
type AllocatePolicy string

// Supported allocate policies.
const (
	Allocate   AllocatePolicy = "allocate"
	NoAllocate AllocatePolicy = "no-allocate"
)

// ReplacementPolicy selects the victim-selection strategy.
type ReplacementPolicy string

// Supported replacement policies.
const (
	LRU       ReplacementPolicy = "lru"
	FIFO      ReplacementPolicy = "fifo"
	Random    ReplacementPolicy = "random"
	PseudoLRU ReplacementPolicy = "plru"
)

// Config holds the immutable geometry and policies of a cache. It is fixed
// for the lifetime of the cache; there is no live reconfiguration.
type Config struct {
	LineSizeBytes uint64
	NumSets       uint64
	Associativity int
	AddressWidth  int

	WritePolicy       WritePolicy
	AllocatePolicy    AllocatePolicy
	ReplacementPolicy ReplacementPolicy
}

// DefaultConfig returns a configuration with sane defaults: a 16 KiB,
// 4-way, write-back, allocate-on-miss LRU cache with 64-byte lines in a
// 32-bit address space.
func DefaultConfig() Config {
	return Config{
		LineSizeBytes:     64,
		NumSets:           64,
		Associativity:     4,
		AddressWidth:      32,
		WritePolicy:       WriteBack,
		AllocatePolicy:    Allocate,
		ReplacementPolicy: LRU,
	}
}

// TotalBytes returns the data capacity of the cache.
func (c Config) TotalBytes() uint64 {
	return c.LineSizeBytes * c.NumSets * uint64(c.Associativity)
}

// Validate reports whether the configuration describes a buildable cache.
// All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Associativity < 1 {
		return fmt.Errorf("%w: associativity must be >= 1, got %d",
			ErrInvalidConfig, c.Associativity)
	}

	if _, err := addressing.MakeLayout(
		c.LineSizeBytes, c.NumSets, c.AddressWidth,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.WritePolicy {
	case WriteThrough, WriteBack:
	default:
		return fmt.Errorf("%w: unknown write policy %q",
			ErrInvalidConfig, c.WritePolicy)
	}

	switch c.AllocatePolicy {
	case Allocate, NoAllocate:
	default:
		return fmt.Errorf("%w: unknown allocate policy %q",
			ErrInvalidConfig, c.AllocatePolicy)
	}

	switch c.ReplacementPolicy {
	case LRU, FIFO, Random:
	case PseudoLRU:
		// The bit tree needs a full binary tree over the ways.
		if bits.OnesCount(uint(c.Associativity)) != 1 {
			return fmt.Errorf(
				"%w: plru requires a power-of-two associativity, got %d",
				ErrInvalidConfig, c.Associativity)
		}
	default:
		return fmt.Errorf("%w: unknown replacement policy %q",
			ErrInvalidConfig, c.ReplacementPolicy)
	}

	return nil
}
