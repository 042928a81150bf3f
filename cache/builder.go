package cache

import (
	"math/rand"

	"github.com/sarchlab/cachemodel/addressing"
	"github.com/sarchlab/cachemodel/cache/internal/tagging"
	"github.com/sarchlab/cachemodel/cache/internal/writepolicy"
	"github.com/sarchlab/cachemodel/mem"
)

// Builder can build caches.
type Builder struct {
	config  Config
	backing mem.BackingStore
	rng     *rand.Rand
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithLineSize sets the line size in bytes.
func (b Builder) WithLineSize(lineSizeBytes uint64) Builder {
	b.config.LineSizeBytes = lineSizeBytes
	return b
}

// WithNumSets sets the number of sets.
func (b Builder) WithNumSets(numSets uint64) Builder {
	b.config.NumSets = numSets
	return b
}

// WithAssociativity sets the number of ways per set.
func (b Builder) WithAssociativity(numWays int) Builder {
	b.config.Associativity = numWays
	return b
}

// WithAddressWidth sets the address width in bits.
func (b Builder) WithAddressWidth(width int) Builder {
	b.config.AddressWidth = width
	return b
}

// WithWritePolicy sets the write policy.
func (b Builder) WithWritePolicy(policy WritePolicy) Builder {
	b.config.WritePolicy = policy
	return b
}

// WithAllocatePolicy sets the allocate policy.
func (b Builder) WithAllocatePolicy(policy AllocatePolicy) Builder {
	b.config.AllocatePolicy = policy
	return b
}

// WithReplacementPolicy sets the replacement policy.
func (b Builder) WithReplacementPolicy(policy ReplacementPolicy) Builder {
	b.config.ReplacementPolicy = policy
	return b
}

// WithBackingStore sets the next level of the memory hierarchy. When no
// backing store is given, Build creates a mem.Storage spanning the whole
// address space.
func (b Builder) WithBackingStore(backing mem.BackingStore) Builder {
	b.backing = backing
	return b
}

// WithRandomSource sets the random source of the random replacement policy,
// so that simulations can be made reproducible.
func (b Builder) WithRandomSource(rng *rand.Rand) Builder {
	b.rng = rng
	return b
}

// Build validates the configuration and builds a cache. Configuration
// failures are returned wrapped in ErrInvalidConfig.
func (b Builder) Build(name string) (*Comp, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	layout, err := addressing.MakeLayout(
		b.config.LineSizeBytes,
		b.config.NumSets,
		b.config.AddressWidth,
	)
	if err != nil {
		return nil, err
	}

	backing := b.backing
	if backing == nil {
		backing = mem.NewStorage(addressSpaceBytes(b.config.AddressWidth))
	}

	comp := &Comp{
		name:    name,
		config:  b.config,
		layout:  layout,
		engine:  makeEngine(b.config),
		tags:    tagging.NewTags(int(b.config.NumSets), b.config.Associativity, b.createVictimFinder()),
		storage: mem.NewStorage(b.config.TotalBytes()),
		backing: backing,
	}

	return comp, nil
}

func (b Builder) createVictimFinder() tagging.VictimFinder {
	switch b.config.ReplacementPolicy {
	case FIFO:
		return tagging.NewFIFOVictimFinder()
	case Random:
		return tagging.NewRandomVictimFinder(b.rng)
	case PseudoLRU:
		return tagging.NewTreePLRUVictimFinder()
	default:
		return tagging.NewLRUVictimFinder()
	}
}

func makeEngine(config Config) writepolicy.Engine {
	engine := writepolicy.Engine{}

	if config.WritePolicy == WriteBack {
		engine.Mode = writepolicy.WriteBack
	} else {
		engine.Mode = writepolicy.WriteThrough
	}

	if config.AllocatePolicy == NoAllocate {
		engine.Alloc = writepolicy.NoAllocate
	} else {
		engine.Alloc = writepolicy.Allocate
	}

	return engine
}

func addressSpaceBytes(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}

	return uint64(1) << width
}
