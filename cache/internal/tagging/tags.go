// Package tagging tracks which memory lines live in which cache slots, and
// selects victims for eviction.
package tagging

// A Block holds the metadata of one cache line slot.
type Block struct {
	Tag     uint64
	SetID   int
	WayID   int
	IsValid bool
	IsDirty bool
}

// A Set is the group of ways that one index maps to. Besides the blocks
// themselves it carries the bookkeeping state of the replacement policies.
type Set struct {
	Blocks []Block

	// LRUQueue orders way IDs from least to most recently used.
	LRUQueue []int

	// FillOrder holds, per way, the stamp of the fill that installed the
	// current content. FillSeq is the stamp generator.
	FillOrder []uint64
	FillSeq   uint64

	// TreeBits is the bit tree of the pseudo-LRU policy. Node i has its
	// children at 2i+1 and 2i+2; a set bit points at the subtree that was
	// least recently touched.
	TreeBits []bool
}

// Tags is the tag array of a cache: one Set per index.
type Tags interface {
	NumSets() int
	NumWays() int
	GetSet(setID int) *Set
	Lookup(setID int, tag uint64) (Block, bool)
	Update(block Block)
	Visit(block Block)
	Fill(block Block)
	FindVictim(setID int) Block
	Reset()
}

// NewTags creates a tag array with all blocks invalid.
func NewTags(numSets, numWays int, victimFinder VictimFinder) Tags {
	t := &tagArray{
		numSets:      numSets,
		numWays:      numWays,
		victimFinder: victimFinder,
	}

	t.Reset()

	return t
}

type tagArray struct {
	numSets      int
	numWays      int
	victimFinder VictimFinder
	sets         []Set
}

func (t *tagArray) NumSets() int {
	return t.numSets
}

func (t *tagArray) NumWays() int {
	return t.numWays
}

func (t *tagArray) GetSet(setID int) *Set {
	return &t.sets[setID]
}

// Lookup scans the ways of one set for a valid block with the given tag.
// The scan is linear; associativity is a small bounded constant.
func (t *tagArray) Lookup(setID int, tag uint64) (Block, bool) {
	set := &t.sets[setID]
	for _, block := range set.Blocks {
		if block.IsValid && block.Tag == tag {
			return block, true
		}
	}

	return Block{}, false
}

// Update writes back the metadata of a block into its slot.
func (t *tagArray) Update(block Block) {
	t.sets[block.SetID].Blocks[block.WayID] = block
}

// Visit records a hit on a block for the replacement policy.
func (t *tagArray) Visit(block Block) {
	t.victimFinder.Visit(&t.sets[block.SetID], block.WayID)
}

// Fill installs a block after a miss and records the fill for the
// replacement policy.
func (t *tagArray) Fill(block Block) {
	t.Update(block)
	t.victimFinder.Fill(&t.sets[block.SetID], block.WayID)
}

// FindVictim returns the block the replacement policy would evict from the
// given set.
func (t *tagArray) FindVictim(setID int) Block {
	set := &t.sets[setID]
	wayID := t.victimFinder.FindVictim(set)

	return set.Blocks[wayID]
}

// Reset invalidates every block and restores the initial policy state.
func (t *tagArray) Reset() {
	t.sets = make([]Set, t.numSets)
	for i := range t.sets {
		set := &t.sets[i]
		set.Blocks = make([]Block, t.numWays)
		set.LRUQueue = make([]int, 0, t.numWays)
		set.FillOrder = make([]uint64, t.numWays)

		if treeSize := t.numWays - 1; treeSize > 0 {
			set.TreeBits = make([]bool, treeSize)
		}

		for j := range set.Blocks {
			set.Blocks[j].SetID = i
			set.Blocks[j].WayID = j
			set.LRUQueue = append(set.LRUQueue, j)
		}
	}
}
