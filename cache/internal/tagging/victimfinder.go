package tagging

import "math/rand"

// A VictimFinder decides which way of a set should be evicted, and keeps the
// per-set ordering state current as blocks are visited and filled.
type VictimFinder interface {
	// FindVictim returns the way ID to evict from the set.
	FindVictim(set *Set) int

	// Visit records a hit on a way.
	Visit(set *Set, wayID int)

	// Fill records that a way was filled with new content.
	Fill(set *Set, wayID int)
}

func findInvalidWay(set *Set) (int, bool) {
	for i, block := range set.Blocks {
		if !block.IsValid {
			return i, true
		}
	}

	return 0, false
}

// LRUVictimFinder evicts the least recently used way. Invalid ways are
// always preferred over valid ones.
type LRUVictimFinder struct{}

// NewLRUVictimFinder returns a newly constructed LRU victim finder.
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns the first invalid way if one exists, otherwise the way
// at the front of the recency queue.
func (f *LRUVictimFinder) FindVictim(set *Set) int {
	if wayID, ok := findInvalidWay(set); ok {
		return wayID
	}

	return set.LRUQueue[0]
}

// Visit moves the way to the most-recently-used end of the queue.
func (f *LRUVictimFinder) Visit(set *Set, wayID int) {
	moveToBack(set, wayID)
}

// Fill moves the way to the most-recently-used end of the queue.
func (f *LRUVictimFinder) Fill(set *Set, wayID int) {
	moveToBack(set, wayID)
}

func moveToBack(set *Set, wayID int) {
	queue := set.LRUQueue[:0]
	for _, w := range set.LRUQueue {
		if w != wayID {
			queue = append(queue, w)
		}
	}

	set.LRUQueue = append(queue, wayID)
}

// FIFOVictimFinder evicts the way that was filled earliest. Hits do not
// refresh a way's position.
type FIFOVictimFinder struct{}

// NewFIFOVictimFinder returns a newly constructed FIFO victim finder.
func NewFIFOVictimFinder() *FIFOVictimFinder {
	return &FIFOVictimFinder{}
}

// FindVictim returns the first invalid way if one exists, otherwise the
// valid way with the oldest fill stamp.
func (f *FIFOVictimFinder) FindVictim(set *Set) int {
	if wayID, ok := findInvalidWay(set); ok {
		return wayID
	}

	victim := 0
	for i := range set.Blocks {
		if set.FillOrder[i] < set.FillOrder[victim] {
			victim = i
		}
	}

	return victim
}

// Visit is a no-op: FIFO ignores hits.
func (f *FIFOVictimFinder) Visit(set *Set, wayID int) {}

// Fill stamps the way with the current fill sequence number.
func (f *FIFOVictimFinder) Fill(set *Set, wayID int) {
	set.FillSeq++
	set.FillOrder[wayID] = set.FillSeq
}

// RandomVictimFinder evicts a uniformly chosen way, valid or not.
type RandomVictimFinder struct {
	rng *rand.Rand
}

// NewRandomVictimFinder returns a victim finder backed by the given random
// source. A nil source falls back to the shared global source.
func NewRandomVictimFinder(rng *rand.Rand) *RandomVictimFinder {
	return &RandomVictimFinder{rng: rng}
}

// FindVictim picks a way uniformly at random.
func (f *RandomVictimFinder) FindVictim(set *Set) int {
	if f.rng != nil {
		return f.rng.Intn(len(set.Blocks))
	}

	return rand.Intn(len(set.Blocks))
}

// Visit is a no-op.
func (f *RandomVictimFinder) Visit(set *Set, wayID int) {}

// Fill is a no-op.
func (f *RandomVictimFinder) Fill(set *Set, wayID int) {}

// TreePLRUVictimFinder approximates LRU with one bit per internal node of a
// binary tree over the ways. Finding a victim inspects O(log ways) bits,
// never the whole set. The way count must be a power of two.
type TreePLRUVictimFinder struct{}

// NewTreePLRUVictimFinder returns a newly constructed tree pseudo-LRU victim
// finder.
func NewTreePLRUVictimFinder() *TreePLRUVictimFinder {
	return &TreePLRUVictimFinder{}
}

// FindVictim returns the first invalid way if one exists, otherwise walks
// the bit tree from the root, at each node descending into the subtree the
// bit marks as least recently touched.
func (f *TreePLRUVictimFinder) FindVictim(set *Set) int {
	if wayID, ok := findInvalidWay(set); ok {
		return wayID
	}

	node := 0
	lo, hi := 0, len(set.Blocks)

	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if set.TreeBits[node] {
			node = 2*node + 2
			lo = mid
		} else {
			node = 2*node + 1
			hi = mid
		}
	}

	return lo
}

// Visit flips the bits along the path to the way so that each one points at
// the opposite subtree.
func (f *TreePLRUVictimFinder) Visit(set *Set, wayID int) {
	touch(set, wayID)
}

// Fill behaves like Visit: a fill is the most recent touch of the way.
func (f *TreePLRUVictimFinder) Fill(set *Set, wayID int) {
	touch(set, wayID)
}

func touch(set *Set, wayID int) {
	node := 0
	lo, hi := 0, len(set.Blocks)

	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if wayID < mid {
			set.TreeBits[node] = true
			node = 2*node + 1
			hi = mid
		} else {
			set.TreeBits[node] = false
			node = 2*node + 2
			lo = mid
		}
	}
}
