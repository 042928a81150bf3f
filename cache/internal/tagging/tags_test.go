package tagging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tags", func() {
	var tags Tags

	BeforeEach(func() {
		tags = NewTags(16, 4, NewLRUVictimFinder())
	})

	It("should start with all blocks invalid", func() {
		for setID := 0; setID < tags.NumSets(); setID++ {
			set := tags.GetSet(setID)
			for _, block := range set.Blocks {
				Expect(block.IsValid).To(BeFalse())
				Expect(block.SetID).To(Equal(setID))
			}
		}
	})

	It("should lookup a filled block", func() {
		tags.Fill(Block{Tag: 0x1006, SetID: 6, WayID: 0, IsValid: true})

		block, ok := tags.Lookup(6, 0x1006)
		Expect(ok).To(BeTrue())
		Expect(block.Tag).To(Equal(uint64(0x1006)))
		Expect(block.WayID).To(Equal(0))
	})

	It("should not find a tag in another set", func() {
		tags.Fill(Block{Tag: 0x1006, SetID: 6, WayID: 0, IsValid: true})

		_, ok := tags.Lookup(7, 0x1006)
		Expect(ok).To(BeFalse())
	})

	It("should not find an invalid block", func() {
		tags.Update(Block{Tag: 0x1006, SetID: 6, WayID: 0, IsValid: false})

		_, ok := tags.Lookup(6, 0x1006)
		Expect(ok).To(BeFalse())
	})

	It("should never hold duplicate valid tags in one set", func() {
		tags.Fill(Block{Tag: 0x20, SetID: 3, WayID: 0, IsValid: true})
		tags.Fill(Block{Tag: 0x21, SetID: 3, WayID: 1, IsValid: true})
		tags.Fill(Block{Tag: 0x22, SetID: 3, WayID: 2, IsValid: true})

		set := tags.GetSet(3)
		seen := map[uint64]bool{}
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}
			Expect(seen[block.Tag]).To(BeFalse())
			seen[block.Tag] = true
		}
	})

	It("should invalidate everything on reset", func() {
		tags.Fill(Block{Tag: 0x20, SetID: 3, WayID: 0, IsValid: true})

		tags.Reset()

		_, ok := tags.Lookup(3, 0x20)
		Expect(ok).To(BeFalse())
	})
})
