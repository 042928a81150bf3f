package cache

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/cachemodel/addressing"
)

var fakeBackingErr = errors.New("backing store unavailable")

// A 128-byte cache with one 2-way set and 64-byte lines. With a single set
// the index field is empty and the tag is the address divided by the line
// size.
func buildTinyCache(backing *MockBackingStore, policy ReplacementPolicy) *Comp {
	c, err := MakeBuilder().
		WithLineSize(64).
		WithNumSets(1).
		WithAssociativity(2).
		WithAddressWidth(32).
		WithWritePolicy(WriteBack).
		WithAllocatePolicy(Allocate).
		WithReplacementPolicy(policy).
		WithBackingStore(backing).
		Build("Cache")
	Expect(err).ToNot(HaveOccurred())

	return c
}

func line64(first ...byte) []byte {
	line := make([]byte, 64)
	copy(line, first)
	return line
}

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
		backing  *MockBackingStore
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backing = NewMockBackingStore(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("loading", func() {
		var c *Comp

		BeforeEach(func() {
			c = buildTinyCache(backing, LRU)
		})

		It("should fetch the line on a miss", func() {
			backing.EXPECT().
				Read(uint64(0x1000), uint64(64)).
				Return(line64(0xAB), nil)

			data, result, err := c.Load(0x1000)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeFalse())
			Expect(data).To(HaveLen(64))
			Expect(data[0]).To(Equal(byte(0xAB)))
		})

		It("should hit without touching the backing store", func() {
			backing.EXPECT().
				Read(uint64(0x1000), uint64(64)).
				Return(line64(0xAB), nil)

			_, _, err := c.Load(0x1000)
			Expect(err).ToNot(HaveOccurred())

			data, result, err := c.Load(0x1010)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeTrue())
			Expect(data).To(HaveLen(48))

			stats := c.StatisticsSnapshot()
			Expect(stats.Accesses).To(Equal(uint64(2)))
			Expect(stats.Hits).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("should reject an address beyond the address width", func() {
			_, _, err := c.Load(uint64(1) << 32)
			Expect(err).To(MatchError(addressing.ErrInvalidAddress))
		})

		It("should leave the cache unchanged when the fetch fails", func() {
			backing.EXPECT().
				Read(uint64(0x1000), uint64(64)).
				Return(nil, fakeBackingErr)

			_, _, err := c.Load(0x1000)
			Expect(err).To(MatchError(fakeBackingErr))
			Expect(c.StatisticsSnapshot()).To(Equal(Statistics{}))

			// A retry with a repaired backing store succeeds.
			backing.EXPECT().
				Read(uint64(0x1000), uint64(64)).
				Return(line64(), nil)

			_, result, err := c.Load(0x1000)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeFalse())
		})
	})

	Context("replacement", func() {
		loadABAC := func(c *Comp) AccessResult {
			backing.EXPECT().
				Read(gomock.Any(), uint64(64)).
				Return(line64(), nil).
				Times(3)

			_, _, err := c.Load(0x0000) // A
			Expect(err).ToNot(HaveOccurred())
			_, _, err = c.Load(0x1000) // B
			Expect(err).ToNot(HaveOccurred())
			_, result, err := c.Load(0x0000) // A again
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeTrue())

			_, result, err = c.Load(0x2000) // C forces an eviction
			Expect(err).ToNot(HaveOccurred())

			return result
		}

		It("should evict B under LRU", func() {
			c := buildTinyCache(backing, LRU)

			result := loadABAC(c)

			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedTag).To(Equal(uint64(0x1000 / 64)))
		})

		It("should evict A under FIFO", func() {
			c := buildTinyCache(backing, FIFO)

			result := loadABAC(c)

			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedTag).To(Equal(uint64(0x0000 / 64)))
		})
	})

	Context("write-back", func() {
		var c *Comp

		BeforeEach(func() {
			c = buildTinyCache(backing, LRU)
		})

		It("should dirty the line on a store hit, without writing through",
			func() {
				backing.EXPECT().
					Read(uint64(0x0000), uint64(64)).
					Return(line64(), nil)

				_, _, err := c.Load(0x0000)
				Expect(err).ToNot(HaveOccurred())

				result, err := c.Store(0x0000, []byte{1, 2, 3, 4})
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Hit).To(BeTrue())

				block, ok := c.tags.Lookup(0, 0)
				Expect(ok).To(BeTrue())
				Expect(block.IsDirty).To(BeTrue())
			})

		It("should write a dirty victim back exactly once", func() {
			backing.EXPECT().
				Read(uint64(0x0000), uint64(64)).
				Return(line64(), nil)

			_, _, err := c.Load(0x0000)
			Expect(err).ToNot(HaveOccurred())

			_, err = c.Store(0x0000, []byte{1, 2, 3, 4})
			Expect(err).ToNot(HaveOccurred())

			backing.EXPECT().
				Read(uint64(0x1000), uint64(64)).
				Return(line64(), nil)

			_, _, err = c.Load(0x1000)
			Expect(err).ToNot(HaveOccurred())

			// The third line evicts the dirty line at 0x0000.
			backing.EXPECT().
				Write(uint64(0x0000), line64(1, 2, 3, 4)).
				Return(nil)
			backing.EXPECT().
				Read(uint64(0x2000), uint64(64)).
				Return(line64(), nil)

			_, result, err := c.Load(0x2000)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.WriteBackTriggered).To(BeTrue())
			Expect(result.EvictedWasDirty).To(BeTrue())
			Expect(c.StatisticsSnapshot().WriteBacks).To(Equal(uint64(1)))
		})

		It("should flush dirty lines and invalidate everything", func() {
			backing.EXPECT().
				Read(uint64(0x0000), uint64(64)).
				Return(line64(), nil)

			_, err := c.Store(0x0000, []byte{9, 9})
			Expect(err).ToNot(HaveOccurred())

			backing.EXPECT().
				Write(uint64(0x0000), line64(9, 9)).
				Return(nil)

			Expect(c.Flush()).To(Succeed())

			_, ok := c.tags.Lookup(0, 0)
			Expect(ok).To(BeFalse())
			Expect(c.StatisticsSnapshot().WriteBacks).To(Equal(uint64(1)))
		})
	})

	Context("write-through", func() {
		buildWT := func(alloc AllocatePolicy) *Comp {
			c, err := MakeBuilder().
				WithLineSize(64).
				WithNumSets(1).
				WithAssociativity(2).
				WithAddressWidth(32).
				WithWritePolicy(WriteThrough).
				WithAllocatePolicy(alloc).
				WithBackingStore(backing).
				Build("Cache")
			Expect(err).ToNot(HaveOccurred())

			return c
		}

		expectNoDirtyLine := func(c *Comp) {
			for setID := 0; setID < c.tags.NumSets(); setID++ {
				for _, block := range c.tags.GetSet(setID).Blocks {
					Expect(block.IsDirty).To(BeFalse())
				}
			}
		}

		It("should write through on a store hit and never dirty a line",
			func() {
				c := buildWT(Allocate)

				backing.EXPECT().
					Read(uint64(0x0000), uint64(64)).
					Return(line64(), nil)

				_, _, err := c.Load(0x0000)
				Expect(err).ToNot(HaveOccurred())

				backing.EXPECT().
					Write(uint64(0x0000), line64(7, 8)).
					Return(nil)

				result, err := c.Store(0x0000, []byte{7, 8})
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Hit).To(BeTrue())

				expectNoDirtyLine(c)
			})

		It("should fetch then write on an allocating store miss", func() {
			c := buildWT(Allocate)

			backing.EXPECT().
				Read(uint64(0x0000), uint64(64)).
				Return(line64(0xAA, 0xBB, 0xCC), nil)
			backing.EXPECT().
				Write(uint64(0x0000), line64(7, 0xBB, 0xCC)).
				Return(nil)

			result, err := c.Store(0x0000, []byte{7})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeFalse())

			// The store now hits in the cache.
			data, result, err := c.Load(0x0000)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeTrue())
			Expect(data[:3]).To(Equal([]byte{7, 0xBB, 0xCC}))

			expectNoDirtyLine(c)
		})

		It("should bypass the cache on a non-allocating store miss", func() {
			c := buildWT(NoAllocate)

			backing.EXPECT().
				Read(uint64(0x0000), uint64(64)).
				Return(line64(0xAA, 0xBB), nil)
			backing.EXPECT().
				Write(uint64(0x0000), line64(7, 0xBB)).
				Return(nil)

			result, err := c.Store(0x0000, []byte{7})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hit).To(BeFalse())

			// No line was allocated.
			_, ok := c.tags.Lookup(0, 0)
			Expect(ok).To(BeFalse())
		})
	})

	Context("statistics", func() {
		var c *Comp

		BeforeEach(func() {
			c = buildTinyCache(backing, LRU)
		})

		It("should compute the textbook AMAT", func() {
			c.stats = Statistics{Accesses: 20, Hits: 19, Misses: 1}

			Expect(c.AMAT(2, 200)).To(Equal(12.0))
		})

		It("should return the hit time before the first access", func() {
			Expect(c.AMAT(2, 200)).To(Equal(2.0))
		})

		It("should snapshot idempotently", func() {
			backing.EXPECT().
				Read(uint64(0x0000), uint64(64)).
				Return(line64(), nil)

			_, _, err := c.Load(0x0000)
			Expect(err).ToNot(HaveOccurred())

			first := c.StatisticsSnapshot()
			second := c.StatisticsSnapshot()
			Expect(first).To(Equal(second))
		})

		It("should reset only on request", func() {
			c.stats = Statistics{Accesses: 5, Hits: 3, Misses: 2}

			c.ResetStatistics()

			Expect(c.StatisticsSnapshot()).To(Equal(Statistics{}))
		})
	})

	Context("store argument checking", func() {
		It("should reject a store that crosses a line boundary", func() {
			c := buildTinyCache(backing, LRU)

			_, err := c.Store(0x3E, []byte{1, 2, 3, 4})
			Expect(err).To(MatchError(addressing.ErrInvalidAddress))
		})
	})
})

var _ = Describe("Builder", func() {
	It("should reject a non-power-of-two set count", func() {
		_, err := MakeBuilder().WithNumSets(17).Build("Cache")
		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should reject zero associativity", func() {
		_, err := MakeBuilder().WithAssociativity(0).Build("Cache")
		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should reject a geometry that leaves no tag bits", func() {
		_, err := MakeBuilder().
			WithLineSize(64).
			WithNumSets(16).
			WithAddressWidth(10).
			Build("Cache")
		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should reject plru with a non-power-of-two associativity", func() {
		_, err := MakeBuilder().
			WithAssociativity(3).
			WithReplacementPolicy(PseudoLRU).
			Build("Cache")
		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should reject an unknown replacement policy", func() {
		_, err := MakeBuilder().
			WithReplacementPolicy("clock").
			Build("Cache")
		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should default to a self-contained backing store", func() {
		c, err := MakeBuilder().Build("Cache")
		Expect(err).ToNot(HaveOccurred())

		_, err = c.Store(0x100, []byte{42})
		Expect(err).ToNot(HaveOccurred())

		data, _, err := c.Load(0x100)
		Expect(err).ToNot(HaveOccurred())
		Expect(data[0]).To(Equal(byte(42)))
	})
})
