package ssd

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/flashsim/sim/hooking"
)

// writeSeq writes pages into block in order.
func writeSeq(d *Device, block BlockID, pages ...LogicalPageID) {
	for _, p := range pages {
		d.WritePage(p, block)
	}
}

// scripted returns a victim supplier that hands out ids in order.
func scripted(ids ...BlockID) func() BlockID {
	return func() BlockID {
		Expect(ids).NotTo(BeEmpty(), "victim script exhausted")

		id := ids[0]
		ids = ids[1:]

		return id
	}
}

func slotOf(d *Device, page LogicalPageID) (BlockID, uint64) {
	addr, ok := d.Resolve(page)
	Expect(ok).To(BeTrue(), "page %d is not resolved", page)

	return d.BlockOf(addr), d.PositionOf(addr)
}

var _ = Describe("Device", func() {
	var (
		d *Device
	)

	BeforeEach(func() {
		d = smallBuilder().WithFillRatio(0.125).Build("SSD")
	})

	AfterEach(func() {
		Expect(d.CheckInvariants()).To(Succeed())
	})

	Context("when writing pages", func() {
		It("should resolve a page to the slot holding it", func() {
			d.WritePage(7, 3)

			addr, ok := d.Resolve(7)
			Expect(ok).To(BeTrue())
			Expect(d.BlockOf(addr)).To(Equal(BlockID(3)))
			Expect(d.PositionOf(addr)).To(Equal(uint64(0)))
			Expect(d.Block(3).PageAt(0)).To(Equal(LogicalPageID(7)))
			Expect(d.MappingState(7)).To(Equal(MappingResolved))
			Expect(d.PhysicalWrites()).To(Equal(uint64(1)))
			Expect(d.UpdateCount(7)).To(Equal(uint64(1)))
		})

		It("should fill blocks sequentially without GC", func() {
			for p := uint64(0); p < d.LogicalPageCount(); p++ {
				d.WritePage(LogicalPageID(p), BlockID(p/d.PagesPerBlock()))
			}

			Expect(d.LogicalPageCount()).To(Equal(uint64(128)))
			Expect(d.BlockCount()).To(Equal(uint64(256)))

			for id := BlockID(0); id < 32; id++ {
				Expect(d.Block(id).IsFull()).To(BeTrue())
				Expect(d.Block(id).ValidCount()).To(Equal(uint64(4)))
			}
			Expect(d.Block(32).IsErased()).To(BeTrue())

			d.WritePage(0, 32)

			Expect(d.Block(0).ValidCount()).To(Equal(uint64(3)))
			Expect(d.Block(0).IsGCEligible()).To(BeTrue())
			Expect(d.Block(0).PageAt(0)).To(Equal(NoPage))
			block, pos := slotOf(d, 0)
			Expect(block).To(Equal(BlockID(32)))
			Expect(pos).To(Equal(uint64(0)))
			Expect(d.PhysicalWrites()).To(Equal(uint64(129)))
			Expect(d.UpdateCount(0)).To(Equal(uint64(2)))
		})

		It("should tag an unassigned block with the group", func() {
			d.WritePageToGroup(1, 2, 5)
			d.WritePageToGroup(2, 2, 6)

			Expect(d.Block(2).Group()).To(Equal(GroupID(5)))
		})

		It("should panic when writing to a full block", func() {
			writeSeq(d, 0, 0, 1, 2, 3)

			Expect(func() { d.WritePage(4, 0) }).To(Panic())
			Expect(d.MappingState(4)).To(Equal(MappingUnused))
		})

		It("should panic on an out of range page", func() {
			Expect(func() { d.WritePage(128, 0) }).To(Panic())
		})

		It("should panic on an out of range block", func() {
			Expect(func() { d.WritePage(0, 256) }).To(Panic())
		})
	})

	Context("when compacting a block in place", func() {
		BeforeEach(func() {
			writeSeq(d, 0, 0, 1, 2, 3)
			writeSeq(d, 1, 1, 2)
		})

		It("should shift live pages to the front", func() {
			d.CompactBlock(0)

			b := d.Block(0)
			Expect(b.WriteCursor()).To(Equal(uint64(2)))
			Expect(b.ValidCount()).To(Equal(uint64(2)))
			Expect(b.PageAt(0)).To(Equal(LogicalPageID(0)))
			Expect(b.PageAt(1)).To(Equal(LogicalPageID(3)))
			Expect(b.PageAt(2)).To(Equal(NoPage))
			Expect(b.PageAt(3)).To(Equal(NoPage))
			Expect(b.GCGeneration()).To(Equal(int64(1)))
			Expect(b.WrittenByGC()).To(BeTrue())
			Expect(b.GCAge()).To(Equal(int64(0)))
			Expect(b.EraseCount()).To(Equal(uint64(1)))

			block, pos := slotOf(d, 3)
			Expect(block).To(Equal(BlockID(0)))
			Expect(pos).To(Equal(uint64(1)))

			Expect(d.PhysicalWrites()).To(Equal(uint64(8)))
			Expect(d.GCUpdateCount(3)).To(Equal(uint64(1)))
			Expect(d.UpdateCount(3)).To(Equal(uint64(1)))
			Expect(d.GCedHostWritten()).To(Equal(uint64(1)))
			Expect(d.GCedGCWritten()).To(BeZero())
		})

		It("should attribute a second compaction to GC-written data", func() {
			d.CompactBlock(0)
			d.CompactBlock(0)

			Expect(d.GCedHostWritten()).To(Equal(uint64(1)))
			Expect(d.GCedGCWritten()).To(Equal(uint64(1)))
			Expect(d.Block(0).GCGeneration()).To(Equal(int64(2)))
			Expect(d.Block(0).GCAge()).To(Equal(int64(1)))
			Expect(d.EraseAge()).To(Equal(int64(2)))

			d.ResetGCAttribution()
			Expect(d.GCedHostWritten()).To(BeZero())
			Expect(d.GCedGCWritten()).To(BeZero())
		})

		It("should leave a block without invalid pages unchanged", func() {
			writeSeq(d, 2, 8, 9, 10, 11)

			d.CompactBlock(2)

			b := d.Block(2)
			Expect(b.WriteCursor()).To(Equal(uint64(4)))
			Expect(b.ValidCount()).To(Equal(uint64(4)))
			for pos, p := range []LogicalPageID{8, 9, 10, 11} {
				Expect(b.PageAt(uint64(pos))).To(Equal(p))
			}
			Expect(d.GCedHostWritten()).To(Equal(uint64(1)))
		})

		It("should summarize generations", func() {
			d.CompactBlock(0)

			gens := d.Generations(3)
			Expect(gens).To(HaveLen(3))
			Expect(gens[0].Blocks).To(Equal(uint64(255)))
			Expect(gens[1].Blocks).To(Equal(uint64(1)))
			Expect(gens[1].ValidPages).To(Equal(uint64(2)))
			Expect(gens[1].HasFull).To(BeFalse())
			Expect(gens[2].Blocks).To(BeZero())
			Expect(d.CountWrittenByGC()).To(Equal(uint64(1)))
		})

		It("should fold high generations into the last bucket", func() {
			d.CompactBlock(0)
			d.CompactBlock(0)
			d.CompactBlock(0)

			gens := d.Generations(2)
			Expect(gens[1].Blocks).To(Equal(uint64(1)))
		})
	})

	Context("when moving pages to another block", func() {
		BeforeEach(func() {
			writeSeq(d, 0, 0, 1, 2, 3)
			writeSeq(d, 2, 1)
			writeSeq(d, 1, 4, 5)
		})

		It("should stop when the destination is full", func() {
			pending := d.MoveValidPagesTo(0, 1)

			Expect(pending).To(BeTrue())
			Expect(d.Block(1).IsFull()).To(BeTrue())
			Expect(d.Block(1).WrittenByGC()).To(BeTrue())
			Expect(d.Block(0).ValidCount()).To(Equal(uint64(1)))

			block, pos := slotOf(d, 0)
			Expect(block).To(Equal(BlockID(1)))
			Expect(pos).To(Equal(uint64(2)))
			block, pos = slotOf(d, 2)
			Expect(block).To(Equal(BlockID(1)))
			Expect(pos).To(Equal(uint64(3)))
			block, _ = slotOf(d, 3)
			Expect(block).To(Equal(BlockID(0)))
			Expect(d.GCUpdateCount(0)).To(Equal(uint64(1)))
		})

		It("should report a drained source", func() {
			Expect(d.MoveValidPagesTo(0, 1)).To(BeTrue())
			Expect(d.MoveValidPagesTo(0, 3)).To(BeFalse())

			Expect(d.Block(0).AllInvalid()).To(BeTrue())
			block, _ := slotOf(d, 3)
			Expect(block).To(Equal(BlockID(3)))

			d.EraseBlock(0)
			Expect(d.Block(0).IsErased()).To(BeTrue())
		})

		It("should panic when moving a block into itself", func() {
			Expect(func() { d.MoveValidPagesTo(1, 1) }).To(Panic())
		})

		It("should refuse to erase a block with live pages", func() {
			Expect(func() { d.EraseBlock(0) }).To(Panic())
		})
	})

	Context("when routing pages to several blocks", func() {
		BeforeEach(func() {
			writeSeq(d, 0, 0, 1, 2, 3)
			writeSeq(d, 2, 8, 9, 10, 11)
		})

		It("should keep pages routed to a full block", func() {
			fullDst, pending := d.MoveValidPagesRouted(0,
				func(p LogicalPageID) (BlockID, GroupID) {
					if p%2 == 0 {
						return 1, 7
					}
					return 2, 8
				})

			Expect(pending).To(BeTrue())
			Expect(fullDst).To(Equal(BlockID(2)))
			Expect(d.Block(1).Group()).To(Equal(GroupID(7)))
			Expect(d.Block(1).ValidCount()).To(Equal(uint64(2)))
			Expect(d.Block(0).ValidCount()).To(Equal(uint64(2)))
			block, _ := slotOf(d, 1)
			Expect(block).To(Equal(BlockID(0)))
		})

		It("should report a drained source", func() {
			_, pending := d.MoveValidPagesRouted(0,
				func(LogicalPageID) (BlockID, GroupID) { return 3, 9 })

			Expect(pending).To(BeFalse())
			Expect(d.Block(0).AllInvalid()).To(BeTrue())
			Expect(d.Block(3).Group()).To(Equal(GroupID(9)))
			Expect(d.Block(3).ValidCount()).To(Equal(uint64(4)))
		})

		It("should panic when a page is routed back into its source", func() {
			Expect(func() {
				d.MoveValidPagesRouted(0,
					func(LogicalPageID) (BlockID, GroupID) { return 0, 1 })
			}).To(Panic())
		})
	})

	Context("when compacting until a block is free", func() {
		BeforeEach(func() {
			writeSeq(d, 0, 0, 1, 2, 3)
			writeSeq(d, 1, 4, 5, 6, 7)
			writeSeq(d, 2, 8, 9, 10, 11)
			writeSeq(d, 3, 0, 1, 4, 8)
			writeSeq(d, 4, 9, 10, 11)
		})

		It("should absorb victims into the accumulator", func() {
			freed, acc := d.CompactUntilFreeBlock(0, false, scripted(0, 1, 2))

			Expect(freed).To(Equal(BlockID(2)))
			Expect(acc).To(Equal(BlockID(1)))

			Expect(d.Block(2).IsErased()).To(BeTrue())
			Expect(d.Block(2).GCGeneration()).To(BeZero())

			Expect(d.Block(0).IsFull()).To(BeTrue())
			Expect(d.Block(0).ValidCount()).To(Equal(uint64(4)))
			Expect(d.Block(0).GCGeneration()).To(Equal(int64(1)))

			Expect(d.Block(1).WriteCursor()).To(Equal(uint64(1)))
			Expect(d.Block(1).PageAt(0)).To(Equal(LogicalPageID(7)))
			Expect(d.Block(1).GCGeneration()).To(Equal(int64(1)))

			for _, p := range []LogicalPageID{2, 3, 5, 6} {
				block, _ := slotOf(d, p)
				Expect(block).To(Equal(BlockID(0)))
			}

			Expect(d.PhysicalWrites()).To(Equal(uint64(24)))
		})

		It("should reuse an accumulator with room", func() {
			_, acc := d.CompactUntilFreeBlock(0, false, scripted(0, 1, 2))
			writeSeq(d, 4, 0)

			freed, acc := d.CompactUntilFreeBlock(acc, true, scripted(3))

			Expect(freed).To(Equal(BlockID(3)))
			Expect(acc).To(Equal(BlockID(1)))
			Expect(d.Block(3).IsErased()).To(BeTrue())
			Expect(d.Block(1).IsFull()).To(BeTrue())
			Expect(d.Block(1).GCGeneration()).To(Equal(int64(1)))
		})

		It("should panic when the victim is not GC-eligible", func() {
			Expect(func() {
				d.CompactUntilFreeBlock(0, false, scripted(4))
			}).To(Panic())
		})
	})

	Context("when the accumulator is full", func() {
		BeforeEach(func() {
			writeSeq(d, 0, 0, 1, 2, 3)
			writeSeq(d, 1, 4, 5, 6, 7)
			writeSeq(d, 2, 8, 9, 10, 11)
			writeSeq(d, 3, 0, 4, 5, 6)
			writeSeq(d, 4, 7, 8, 9)
		})

		It("should erase a drained victim without relocating pages", func() {
			before := d.PhysicalWrites()

			freed, acc := d.CompactUntilFreeBlock(0, true, scripted(1))

			Expect(freed).To(Equal(BlockID(1)))
			Expect(acc).To(Equal(BlockID(0)))
			Expect(d.PhysicalWrites()).To(Equal(before))
			Expect(d.Block(1).IsErased()).To(BeTrue())
			Expect(d.Block(0).IsFull()).To(BeTrue())
			Expect(d.Block(0).ValidCount()).To(Equal(uint64(3)))
		})

		It("should hand the accumulator role to a compacted victim", func() {
			before := d.PhysicalWrites()

			freed, acc := d.CompactUntilFreeBlock(0, true, scripted(2, 1))

			Expect(freed).To(Equal(BlockID(1)))
			Expect(acc).To(Equal(BlockID(2)))
			Expect(d.PhysicalWrites()).To(Equal(before + 2))
			Expect(d.Block(2).WriteCursor()).To(Equal(uint64(2)))
			Expect(d.Block(2).GCGeneration()).To(Equal(int64(1)))
			Expect(d.Block(0).ValidCount()).To(Equal(uint64(3)))
		})

		It("should compact the accumulator when it is picked as victim",
			func() {
				before := d.PhysicalWrites()

				freed, acc := d.CompactUntilFreeBlock(0, true, scripted(0, 1))

				Expect(freed).To(Equal(BlockID(1)))
				Expect(acc).To(Equal(BlockID(0)))
				Expect(d.PhysicalWrites()).To(Equal(before + 3))
				Expect(d.Block(0).WriteCursor()).To(Equal(uint64(3)))
				Expect(d.Block(0).GCGeneration()).To(Equal(int64(1)))
			})

		It("should replace an accumulator without free slots", func() {
			freed, acc := d.CompactUntilFreeBlock(3, true, scripted(2, 1))

			Expect(acc).To(Equal(BlockID(2)))
			Expect(freed).To(Equal(BlockID(1)))
			Expect(d.Block(3).ValidCount()).To(Equal(uint64(4)))
			Expect(d.Block(3).GCGeneration()).To(BeZero())
		})
	})

	Context("when compacting grouped blocks", func() {
		var heads map[GroupID]BlockID

		BeforeEach(func() {
			for _, p := range []LogicalPageID{0, 1, 2, 3} {
				d.WritePageToGroup(p, 0, 1)
			}
			d.WritePageToGroup(0, 5, 1)

			for _, p := range []LogicalPageID{10, 12, 14} {
				d.WritePageToGroup(p, 1, 1)
			}
			d.WritePageToGroup(20, 2, 2)

			for _, p := range []LogicalPageID{30, 31, 32, 33} {
				d.WritePageToGroup(p, 3, 1)
			}
			for _, p := range []LogicalPageID{30, 31, 32, 33} {
				d.WritePageToGroup(p, 6, 1)
			}

			heads = map[GroupID]BlockID{1: 1, 2: 2}
		})

		It("should regroup a victim that cannot be drained", func() {
			victims := scripted(0, 3)
			var regrouped []BlockID

			freed := d.CompactUntilFreeBlockGrouped(1,
				func(g GroupID) BlockID {
					Expect(g).To(Equal(GroupID(1)))
					return victims()
				},
				func(p LogicalPageID) (BlockID, GroupID) {
					g := GroupID(2)
					if p%2 == 1 {
						g = 1
					}
					return heads[g], g
				},
				func(g GroupID, id BlockID) {
					heads[g] = id
					regrouped = append(regrouped, id)
				})

			Expect(freed).To(Equal(BlockID(3)))
			Expect(d.Block(3).IsErased()).To(BeTrue())
			Expect(d.Block(3).Group()).To(Equal(NoGroup))

			Expect(regrouped).To(Equal([]BlockID{0}))
			Expect(heads[1]).To(Equal(BlockID(0)))
			Expect(d.Block(0).Group()).To(Equal(GroupID(1)))
			Expect(d.Block(0).GCGeneration()).To(Equal(int64(1)))
			Expect(d.Block(0).PageAt(0)).To(Equal(LogicalPageID(3)))

			block, pos := slotOf(d, 1)
			Expect(block).To(Equal(BlockID(1)))
			Expect(pos).To(Equal(uint64(3)))
			block, pos = slotOf(d, 2)
			Expect(block).To(Equal(BlockID(2)))
			Expect(pos).To(Equal(uint64(1)))
		})
	})

	Context("when compacting a chain of victims", func() {
		BeforeEach(func() {
			writeSeq(d, 0, 0, 1, 2, 3)
			writeSeq(d, 1, 4, 5, 6, 7)
			writeSeq(d, 2, 8, 9, 10, 11)
			writeSeq(d, 3, 1, 2, 3, 4)
			writeSeq(d, 4, 5, 9, 10, 11)
		})

		It("should free the head of the chain", func() {
			freed := d.CompactVictimChain([]BlockID{0, 1, 2})

			Expect(freed).To(Equal(BlockID(0)))
			Expect(d.Block(0).IsErased()).To(BeTrue())

			block, _ := slotOf(d, 0)
			Expect(block).To(Equal(BlockID(1)))
			for _, p := range []LogicalPageID{8, 6, 7} {
				block, _ := slotOf(d, p)
				Expect(block).To(Equal(BlockID(2)))
			}
		})

		It("should panic if a single victim still holds pages", func() {
			Expect(func() { d.CompactVictimChain([]BlockID{0}) }).To(Panic())
		})

		It("should panic on an empty chain", func() {
			Expect(func() { d.CompactVictimChain(nil) }).To(Panic())
		})
	})

	Context("with a write buffer", func() {
		BeforeEach(func() {
			d = smallBuilder().
				WithFillRatio(0.125).
				WithWriteBufferFraction(0.015625).
				Build("SSD")
		})

		It("should stage pages until they are evicted", func() {
			d.WritePage(5, 0)
			d.WritePage(6, 0)
			d.WritePage(5, 0)

			Expect(d.PhysicalWrites()).To(BeZero())
			Expect(d.StagedPageCount()).To(Equal(2))
			Expect(d.MappingState(5)).To(Equal(MappingStaged))

			d.WritePage(7, 0)

			Expect(d.PhysicalWrites()).To(Equal(uint64(1)))
			block, pos := slotOf(d, 6)
			Expect(block).To(Equal(BlockID(0)))
			Expect(pos).To(BeZero())
			Expect(d.MappingState(7)).To(Equal(MappingStaged))
		})

		It("should flush staged pages in LRU order", func() {
			d.WritePage(5, 0)
			d.WritePage(6, 0)
			d.WritePage(5, 0)
			d.WritePage(7, 0)

			n := d.FlushWriteBuffer(func() BlockID { return 0 })

			Expect(n).To(Equal(uint64(2)))
			Expect(d.StagedPageCount()).To(BeZero())
			Expect(d.Block(0).PageAt(1)).To(Equal(LogicalPageID(5)))
			Expect(d.Block(0).PageAt(2)).To(Equal(LogicalPageID(7)))
		})

		It("should invalidate the old copy when a page is staged", func() {
			d.WritePage(5, 0)
			d.FlushWriteBuffer(func() BlockID { return 0 })
			Expect(d.Block(0).ValidCount()).To(Equal(uint64(1)))

			d.WritePage(5, 1)

			Expect(d.Block(0).ValidCount()).To(BeZero())
			Expect(d.MappingState(5)).To(Equal(MappingStaged))
		})
	})

	It("should count full blocks by valid pages", func() {
		writeSeq(d, 0, 0, 1, 2, 3)
		writeSeq(d, 1, 4, 5, 6, 7)
		writeSeq(d, 2, 0)

		hist := d.ValidCountHistogram()

		Expect(hist).To(HaveLen(5))
		Expect(hist[3]).To(Equal(uint64(1)))
		Expect(hist[4]).To(Equal(uint64(1)))
	})

	It("should detect a broken mapping", func() {
		writeSeq(d, 0, 0, 1)
		d.l2p[1] = d.AddressOf(0, 0)

		Expect(d.CheckInvariants()).NotTo(Succeed())

		d.l2p[1] = d.AddressOf(0, 1)
	})
})

var _ = Describe("Device hooks", func() {
	var (
		mockCtrl *gomock.Controller
		hook     *MockHook
		d        *Device
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hook = NewMockHook(mockCtrl)
		d = smallBuilder().WithFillRatio(0.125).WithHook(hook).Build("SSD")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke hooks on compaction and erase", func() {
		writeSeq(d, 0, 0, 1, 2, 3)
		writeSeq(d, 1, 0, 1, 2, 3)

		gomock.InOrder(
			hook.EXPECT().
				Func(gomock.Any()).
				Do(func(ctx hooking.HookCtx) {
					Expect(ctx.Pos).To(Equal(HookPosBlockCompacted))
					Expect(ctx.Item).To(Equal(BlockID(0)))
					Expect(ctx.Detail).To(Equal(CompactionDetail{
						Moved:      0,
						Generation: 1,
					}))
				}),
			hook.EXPECT().
				Func(gomock.Any()).
				Do(func(ctx hooking.HookCtx) {
					Expect(ctx.Pos).To(Equal(HookPosBlockErased))
					Expect(ctx.Item).To(Equal(BlockID(0)))
				}),
		)

		d.CompactBlock(0)
		d.EraseBlock(0)
	})

	It("should invoke hooks on page moves", func() {
		writeSeq(d, 0, 0, 1, 2, 3)
		writeSeq(d, 2, 1)

		hook.EXPECT().
			Func(gomock.Any()).
			Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(Equal(HookPosPagesMoved))
				Expect(ctx.Detail).To(Equal(MoveDetail{Moved: 3, Drained: true}))
			})

		d.MoveValidPagesTo(0, 1)
	})
})

var _ = Describe("LogHook", func() {
	It("should log block events", func() {
		buf := new(bytes.Buffer)
		d := smallBuilder().
			WithFillRatio(0.125).
			WithHook(NewLogHook(log.New(buf, "", 0))).
			Build("SSD")

		writeSeq(d, 0, 0, 1, 2, 3)
		writeSeq(d, 1, 0, 1)
		d.CompactBlock(0)
		d.MoveValidPagesTo(0, 1)
		d.EraseBlock(0)

		Expect(buf.String()).To(Equal(
			"compact block=0 moved=2 generation=1 prev_gc=false\n" +
				"move src=0 moved=2 drained=true\n" +
				"erase block=0\n"))
	})
})
