// Package cache implements a synchronous N-way set-associative cache model
// with configurable replacement and write policies.
//
// The model is a teaching and verification library: every Load and Store
// resolves fully before returning, including any write-back and fill. It is
// not safe for concurrent use; callers that need concurrency should wrap it
// with their own lock.
package cache

import (
	"fmt"

	"github.com/sarchlab/cachemodel/addressing"
	"github.com/sarchlab/cachemodel/cache/internal/tagging"
	"github.com/sarchlab/cachemodel/cache/internal/writepolicy"
	"github.com/sarchlab/cachemodel/mem"
)

// An AccessResult describes what one Load or Store did to the cache.
type AccessResult struct {
	Hit bool

	// Evicted reports that a valid line was displaced to make room.
	Evicted         bool
	EvictedTag      uint64
	EvictedWasDirty bool

	// WriteBackTriggered reports that the evicted line was written back to
	// the backing store as part of this access.
	WriteBackTriggered bool
}

// Statistics holds the monotonically increasing access counters of a cache.
// The counters reset only through ResetStatistics, never implicitly.
type Statistics struct {
	Accesses   uint64
	Hits       uint64
	Misses     uint64
	WriteBacks uint64
}

// HitRate returns hits over accesses, or 0 when nothing was accessed.
func (s Statistics) HitRate() float64 {
	if s.Accesses == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Accesses)
}

// MissRate returns misses over accesses, or 0 when nothing was accessed.
func (s Statistics) MissRate() float64 {
	if s.Accesses == 0 {
		return 0
	}

	return float64(s.Misses) / float64(s.Accesses)
}

// A Comp is one cache instance.
type Comp struct {
	name    string
	config  Config
	layout  addressing.Layout
	engine  writepolicy.Engine
	tags    tagging.Tags
	storage *mem.Storage
	backing mem.BackingStore
	stats   Statistics
}

// Name returns the name the cache was built with.
func (c *Comp) Name() string {
	return c.name
}

// Config returns the configuration the cache was built with.
func (c *Comp) Config() Config {
	return c.config
}

// Layout returns the address field layout of the cache.
func (c *Comp) Layout() addressing.Layout {
	return c.layout
}

// Load reads through the cache at addr. The returned slice holds the cached
// bytes from addr to the end of its line. On a miss the line is fetched
// from the backing store, evicting and possibly writing back a victim
// first. A failed backing-store access leaves the cache unmodified and is
// returned verbatim.
func (c *Comp) Load(addr uint64) ([]byte, AccessResult, error) {
	fields, err := c.layout.Decode(addr)
	if err != nil {
		return nil, AccessResult{}, err
	}

	setID := int(fields.Index)

	if block, ok := c.tags.Lookup(setID, fields.Tag); ok {
		data, err := c.readSlot(block, fields.Offset)
		if err != nil {
			return nil, AccessResult{}, err
		}

		c.tags.Visit(block)
		c.recordAccess(AccessResult{Hit: true})

		return data, AccessResult{Hit: true}, nil
	}

	result, block, err := c.fill(setID, fields)
	if err != nil {
		return nil, AccessResult{}, err
	}

	data, err := c.readSlot(block, fields.Offset)
	if err != nil {
		return nil, AccessResult{}, err
	}

	c.recordAccess(result)

	return data, result, nil
}

// Store writes through the cache at addr. The data must lie within a single
// line. Hit and miss handling follow the configured write and allocate
// policies.
func (c *Comp) Store(addr uint64, data []byte) (AccessResult, error) {
	fields, err := c.layout.Decode(addr)
	if err != nil {
		return AccessResult{}, err
	}

	if fields.Offset+uint64(len(data)) > c.config.LineSizeBytes {
		return AccessResult{}, fmt.Errorf(
			"%w: store of %d bytes at 0x%x crosses a line boundary",
			addressing.ErrInvalidAddress, len(data), addr)
	}

	setID := int(fields.Index)
	lineAddr := c.layout.LineAddr(addr)

	if block, ok := c.tags.Lookup(setID, fields.Tag); ok {
		return c.storeHit(block, fields, lineAddr, data)
	}

	return c.storeMiss(setID, fields, lineAddr, data)
}

func (c *Comp) storeHit(
	block tagging.Block,
	fields addressing.Fields,
	lineAddr uint64,
	data []byte,
) (AccessResult, error) {
	action := c.engine.OnStoreHit()

	err := c.storage.Write(c.slotAddr(block.SetID, block.WayID)+fields.Offset, data)
	if err != nil {
		return AccessResult{}, err
	}

	if action.PropagateWrite {
		if err := c.propagateLine(block, lineAddr); err != nil {
			return AccessResult{}, err
		}
	}

	if block.IsDirty != action.MarkDirty {
		block.IsDirty = action.MarkDirty
		c.tags.Update(block)
	}

	c.tags.Visit(block)

	result := AccessResult{Hit: true}
	c.recordAccess(result)

	return result, nil
}

func (c *Comp) storeMiss(
	setID int,
	fields addressing.Fields,
	lineAddr uint64,
	data []byte,
) (AccessResult, error) {
	action := c.engine.OnStoreMiss()

	if !action.AllocateLine {
		// The store bypasses the cache. The backing store is
		// line-granular, so merge the store into the full line.
		line, err := c.backing.Read(lineAddr, c.config.LineSizeBytes)
		if err != nil {
			return AccessResult{}, err
		}

		copy(line[fields.Offset:], data)

		if err := c.backing.Write(lineAddr, line); err != nil {
			return AccessResult{}, err
		}

		result := AccessResult{}
		c.recordAccess(result)

		return result, nil
	}

	// Fetch-then-write: bring the line in as a load miss would, then
	// apply the store on top of it.
	result, block, err := c.fill(setID, fields)
	if err != nil {
		return AccessResult{}, err
	}

	err = c.storage.Write(c.slotAddr(block.SetID, block.WayID)+fields.Offset, data)
	if err != nil {
		return AccessResult{}, err
	}

	if action.PropagateWrite {
		if err := c.propagateLine(block, lineAddr); err != nil {
			return AccessResult{}, err
		}
	}

	if action.MarkDirty {
		block.IsDirty = true
		c.tags.Update(block)
	}

	c.recordAccess(result)

	return result, nil
}

// fill resolves a miss: it selects a victim, writes the victim back when the
// write policy requires it, and installs the missing line. The cache state
// is not touched until the backing-store accesses have succeeded, so a
// failed fill is safe to retry.
func (c *Comp) fill(
	setID int,
	fields addressing.Fields,
) (AccessResult, tagging.Block, error) {
	victim := c.tags.FindVictim(setID)

	result := AccessResult{}
	if victim.IsValid {
		result.Evicted = true
		result.EvictedTag = victim.Tag
		result.EvictedWasDirty = victim.IsDirty

		if c.engine.MustWriteBack(victim.IsDirty) {
			if err := c.writeBack(victim); err != nil {
				return AccessResult{}, tagging.Block{}, err
			}

			result.WriteBackTriggered = true
		}
	}

	lineAddr := c.layout.Reconstruct(addressing.Fields{
		Tag:   fields.Tag,
		Index: fields.Index,
	})

	line, err := c.backing.Read(lineAddr, c.config.LineSizeBytes)
	if err != nil {
		return AccessResult{}, tagging.Block{}, err
	}

	err = c.storage.Write(c.slotAddr(setID, victim.WayID), line)
	if err != nil {
		return AccessResult{}, tagging.Block{}, err
	}

	block := tagging.Block{
		Tag:     fields.Tag,
		SetID:   setID,
		WayID:   victim.WayID,
		IsValid: true,
	}
	c.tags.Fill(block)

	return result, block, nil
}

func (c *Comp) writeBack(block tagging.Block) error {
	line, err := c.storage.Read(
		c.slotAddr(block.SetID, block.WayID), c.config.LineSizeBytes)
	if err != nil {
		return err
	}

	addr := c.layout.Reconstruct(addressing.Fields{
		Tag:   block.Tag,
		Index: uint64(block.SetID),
	})

	return c.backing.Write(addr, line)
}

func (c *Comp) propagateLine(block tagging.Block, lineAddr uint64) error {
	line, err := c.storage.Read(
		c.slotAddr(block.SetID, block.WayID), c.config.LineSizeBytes)
	if err != nil {
		return err
	}

	return c.backing.Write(lineAddr, line)
}

func (c *Comp) readSlot(
	block tagging.Block,
	offset uint64,
) ([]byte, error) {
	return c.storage.Read(
		c.slotAddr(block.SetID, block.WayID)+offset,
		c.config.LineSizeBytes-offset,
	)
}

func (c *Comp) slotAddr(setID, wayID int) uint64 {
	slot := uint64(setID)*uint64(c.config.Associativity) + uint64(wayID)
	return slot * c.config.LineSizeBytes
}

func (c *Comp) recordAccess(result AccessResult) {
	c.stats.Accesses++

	if result.Hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}

	if result.WriteBackTriggered {
		c.stats.WriteBacks++
	}
}

// Flush writes back every dirty line and invalidates the whole cache.
// Statistics are preserved. A failed write-back aborts the flush; already
// flushed lines stay clean, the rest stay intact.
func (c *Comp) Flush() error {
	for setID := 0; setID < c.tags.NumSets(); setID++ {
		set := c.tags.GetSet(setID)
		for _, block := range set.Blocks {
			if !block.IsValid || !c.engine.MustWriteBack(block.IsDirty) {
				continue
			}

			if err := c.writeBack(block); err != nil {
				return err
			}

			block.IsDirty = false
			c.tags.Update(block)
			c.stats.WriteBacks++
		}
	}

	c.tags.Reset()

	return nil
}

// StatisticsSnapshot returns a copy of the counters. Calling it does not
// change them.
func (c *Comp) StatisticsSnapshot() Statistics {
	return c.stats
}

// ResetStatistics zeroes the counters. This is the only way they reset.
func (c *Comp) ResetStatistics() {
	c.stats = Statistics{}
}

// AMAT computes the average memory access time
// hitTime + missRate*missPenalty over the accesses seen so far. Before the
// first access it returns hitTime unchanged.
func (c *Comp) AMAT(hitTime, missPenalty float64) float64 {
	if c.stats.Accesses == 0 {
		return hitTime
	}

	return hitTime + c.stats.MissRate()*missPenalty
}
