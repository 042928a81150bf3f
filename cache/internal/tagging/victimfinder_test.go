package tagging

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func fullSet(numWays int) *Set {
	set := &Set{
		Blocks:    make([]Block, numWays),
		LRUQueue:  make([]int, 0, numWays),
		FillOrder: make([]uint64, numWays),
		TreeBits:  make([]bool, numWays-1),
	}

	for i := range set.Blocks {
		set.Blocks[i] = Block{WayID: i, IsValid: true}
		set.LRUQueue = append(set.LRUQueue, i)
	}

	return set
}

var _ = Describe("LRUVictimFinder", func() {
	var f *LRUVictimFinder

	BeforeEach(func() {
		f = NewLRUVictimFinder()
	})

	It("should prefer an invalid way", func() {
		set := fullSet(2)
		set.Blocks[1].IsValid = false

		Expect(f.FindVictim(set)).To(Equal(1))
	})

	It("should evict the least recently used way", func() {
		// Fill A into way 0, B into way 1, then touch A again. The
		// victim must be B's way, not A's.
		set := fullSet(2)
		f.Fill(set, 0)
		f.Fill(set, 1)
		f.Visit(set, 0)

		Expect(f.FindVictim(set)).To(Equal(1))
	})
})

var _ = Describe("FIFOVictimFinder", func() {
	var f *FIFOVictimFinder

	BeforeEach(func() {
		f = NewFIFOVictimFinder()
	})

	It("should prefer an invalid way", func() {
		set := fullSet(2)
		set.Blocks[0].IsValid = false

		Expect(f.FindVictim(set)).To(Equal(0))
	})

	It("should ignore hits and evict in fill order", func() {
		// Same access pattern as the LRU test, but here the re-access
		// of way 0 must not save it: way 0 was filled first.
		set := fullSet(2)
		f.Fill(set, 0)
		f.Fill(set, 1)
		f.Visit(set, 0)

		Expect(f.FindVictim(set)).To(Equal(0))
	})
})

var _ = Describe("RandomVictimFinder", func() {
	It("should always return a way in range", func() {
		f := NewRandomVictimFinder(rand.New(rand.NewSource(1)))
		set := fullSet(4)

		for i := 0; i < 100; i++ {
			wayID := f.FindVictim(set)
			Expect(wayID).To(SatisfyAll(
				BeNumerically(">=", 0),
				BeNumerically("<", 4),
			))
		}
	})

	It("should work without an explicit random source", func() {
		f := NewRandomVictimFinder(nil)
		set := fullSet(4)

		wayID := f.FindVictim(set)
		Expect(wayID).To(SatisfyAll(
			BeNumerically(">=", 0),
			BeNumerically("<", 4),
		))
	})
})

var _ = Describe("TreePLRUVictimFinder", func() {
	var f *TreePLRUVictimFinder

	BeforeEach(func() {
		f = NewTreePLRUVictimFinder()
	})

	It("should prefer an invalid way", func() {
		set := fullSet(4)
		set.Blocks[2].IsValid = false

		Expect(f.FindVictim(set)).To(Equal(2))
	})

	It("should evict the oldest way after sequential fills", func() {
		set := fullSet(4)
		for i := 0; i < 4; i++ {
			f.Fill(set, i)
		}

		Expect(f.FindVictim(set)).To(Equal(0))
	})

	It("should steer away from a freshly visited way", func() {
		set := fullSet(4)
		for i := 0; i < 4; i++ {
			f.Fill(set, i)
		}
		f.Visit(set, 0)

		// Touching way 0 points the root at the other subtree, whose
		// older leaf is way 2.
		Expect(f.FindVictim(set)).To(Equal(2))
	})

	It("should never pick the most recently touched way", func() {
		set := fullSet(8)
		for i := 0; i < 8; i++ {
			f.Fill(set, i)
		}

		for way := 0; way < 8; way++ {
			f.Visit(set, way)
			Expect(f.FindVictim(set)).ToNot(Equal(way))
		}
	})
})
