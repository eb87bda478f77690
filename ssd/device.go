package ssd

import (
	"fmt"

	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/sim/naming"
)

// A Device owns the erase blocks and the logical-to-physical mapping table of
// a simulated flash drive. All mutation goes through its methods; calling
// them with arguments that break the model's contract panics.
type Device struct {
	naming.NamedBase
	hooking.HookableBase

	capacityBytes  uint64
	blockSizeBytes uint64
	pageSizeBytes  uint64
	fillRatio      float64

	blockCount        uint64
	pagesPerBlock     uint64
	logicalPageCount  uint64
	physicalPageCount uint64

	blocks        []*Block
	l2p           []PhysicalAddress
	updateCount   []uint64
	gcUpdateCount []uint64
	buffer        *writeBuffer

	physicalWrites  uint64
	eraseAge        int64
	gcedHostWritten uint64
	gcedGCWritten   uint64
}

// CapacityBytes returns the raw capacity of the device.
func (d *Device) CapacityBytes() uint64 { return d.capacityBytes }

// BlockSizeBytes returns the erase block size.
func (d *Device) BlockSizeBytes() uint64 { return d.blockSizeBytes }

// PageSizeBytes returns the page size.
func (d *Device) PageSizeBytes() uint64 { return d.pageSizeBytes }

// FillRatio returns the share of raw capacity exposed as logical pages.
func (d *Device) FillRatio() float64 { return d.fillRatio }

// BlockCount returns the number of erase blocks.
func (d *Device) BlockCount() uint64 { return d.blockCount }

// PagesPerBlock returns the number of pages in each erase block.
func (d *Device) PagesPerBlock() uint64 { return d.pagesPerBlock }

// LogicalPageCount returns the size of the host address space in pages.
func (d *Device) LogicalPageCount() uint64 { return d.logicalPageCount }

// PhysicalPageCount returns the number of physical page slots.
func (d *Device) PhysicalPageCount() uint64 { return d.physicalPageCount }

// WriteBufferCapacity returns the number of pages the write buffer can
// stage. Zero means writes are committed directly.
func (d *Device) WriteBufferCapacity() uint64 { return d.buffer.capacity }

// StagedPageCount returns the number of pages waiting in the write buffer.
func (d *Device) StagedPageCount() int { return d.buffer.len() }

// Block returns the block with the given id.
func (d *Device) Block(id BlockID) *Block {
	d.blockMustExist(id)
	return d.blocks[id]
}

// Blocks returns all blocks, indexed by BlockID. Callers must not modify the
// slice.
func (d *Device) Blocks() []*Block {
	return d.blocks
}

// AddressOf returns the physical address of a slot.
func (d *Device) AddressOf(id BlockID, pos uint64) PhysicalAddress {
	return PhysicalAddress(uint64(id)*d.pagesPerBlock + pos)
}

// BlockOf returns the block part of a physical address.
func (d *Device) BlockOf(addr PhysicalAddress) BlockID {
	return BlockID(uint64(addr) / d.pagesPerBlock)
}

// PositionOf returns the in-block position of a physical address.
func (d *Device) PositionOf(addr PhysicalAddress) uint64 {
	return uint64(addr) % d.pagesPerBlock
}

// Mapping returns the raw mapping entry of a logical page, which may be
// Unused or Staged.
func (d *Device) Mapping(page LogicalPageID) PhysicalAddress {
	d.pageMustExist(page)
	return d.l2p[page]
}

// MappingState tells how a logical page currently resolves.
func (d *Device) MappingState(page LogicalPageID) MappingState {
	switch d.Mapping(page) {
	case Unused:
		return MappingUnused
	case Staged:
		return MappingStaged
	default:
		return MappingResolved
	}
}

// Resolve returns the physical address of a logical page. The bool is false
// if the page has no physical copy.
func (d *Device) Resolve(page LogicalPageID) (PhysicalAddress, bool) {
	addr := d.Mapping(page)
	if addr == Unused || addr == Staged {
		return 0, false
	}

	return addr, true
}

// WritePage writes a logical page into the given block on behalf of the host.
func (d *Device) WritePage(page LogicalPageID, block BlockID) {
	d.WritePageToGroup(page, block, NoGroup)
}

// WritePageToGroup writes a logical page into the given block and tags the
// block with group if it does not belong to a group yet. When the write
// buffer is enabled, the page is staged and only the page evicted from the
// buffer, if any, is committed into the block.
func (d *Device) WritePageToGroup(
	page LogicalPageID,
	block BlockID,
	group GroupID,
) {
	d.pageMustExist(page)
	d.blockMustExist(block)

	if !d.buffer.enabled() {
		d.commit(page, d.blocks[block], group, false)
		return
	}

	if !d.buffer.stage(page) {
		d.detach(page)
		d.l2p[page] = Staged
	}

	if d.buffer.overflowing() {
		evicted, _ := d.buffer.evict()
		d.commit(evicted, d.blocks[block], group, false)
	}
}

// FlushWriteBuffer commits every staged page, least recently used first.
// blockFor is asked for a writable block before each commit. It returns the
// number of pages committed.
func (d *Device) FlushWriteBuffer(blockFor func() BlockID) uint64 {
	n := uint64(0)

	for {
		page, ok := d.buffer.evict()
		if !ok {
			return n
		}

		id := blockFor()
		d.blockMustExist(id)
		d.commit(page, d.blocks[id], NoGroup, false)
		n++
	}
}

func (d *Device) commit(
	page LogicalPageID,
	b *Block,
	group GroupID,
	byGC bool,
) {
	if !b.CanWrite() {
		panic(fmt.Sprintf("cannot write page %d to full %s", page, b))
	}

	if b.group == NoGroup {
		b.group = group
	}

	d.detach(page)

	pos := b.append(page)
	d.l2p[page] = d.AddressOf(b.id, pos)
	d.physicalWrites++

	if byGC {
		d.gcUpdateCount[page]++
	} else {
		d.updateCount[page]++
	}
}

// detach invalidates the physical copy of a page, if it has one.
func (d *Device) detach(page LogicalPageID) {
	addr := d.l2p[page]
	if addr == Unused || addr == Staged {
		return
	}

	d.blocks[d.BlockOf(addr)].invalidate(d.PositionOf(addr))
	d.l2p[page] = Unused
}

// EraseBlock returns a block to the empty state.
func (d *Device) EraseBlock(id BlockID) {
	d.blockMustExist(id)

	b := d.blocks[id]
	if !b.AllInvalid() {
		panic(fmt.Sprintf("erasing %s would lose live pages", b))
	}

	b.erase(d.nextEraseAge())

	if d.NumHooks() > 0 {
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosBlockErased,
			Item:   id,
		})
	}
}

// CompactBlock relocates the live pages of a block to the front of the same
// block and frees the rest of it. Every live page is rewritten, so each one
// counts as a physical write.
func (d *Device) CompactBlock(id BlockID) {
	d.blockMustExist(id)

	b := d.blocks[id]
	prevWrittenByGC := b.writtenByGC

	moved := b.shiftValidToFront()
	b.stampErase(d.nextEraseAge())
	b.gcGeneration++
	d.attributeGC(prevWrittenByGC)
	b.writtenByGC = true

	for pos := uint64(0); pos < moved; pos++ {
		page := b.ptl[pos]
		d.l2p[page] = d.AddressOf(id, pos)
		d.gcUpdateCount[page]++
		d.physicalWrites++
	}

	if d.NumHooks() > 0 {
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosBlockCompacted,
			Item:   id,
			Detail: CompactionDetail{
				Moved:           moved,
				PrevWrittenByGC: prevWrittenByGC,
				Generation:      b.gcGeneration,
			},
		})
	}
}

// MoveValidPagesTo copies live pages from src into dst until dst is full or
// src has no live page left. The source is not erased. It returns true if
// src still holds live pages, i.e. dst filled up first.
func (d *Device) MoveValidPagesTo(src, dst BlockID) bool {
	d.blockMustExist(src)
	d.blockMustExist(dst)

	if src == dst {
		panic(fmt.Sprintf("cannot move pages of block %d into itself", src))
	}

	s := d.blocks[src]
	t := d.blocks[dst]

	d.attributeGC(s.writtenByGC)
	t.writtenByGC = true

	moved := uint64(0)
	for pos := uint64(0); pos < d.pagesPerBlock && t.CanWrite(); pos++ {
		page := s.ptl[pos]
		if page == NoPage {
			continue
		}

		d.commit(page, t, NoGroup, true)
		moved++
	}

	pending := !s.AllInvalid()
	d.hookMove(src, moved, !pending)

	return pending
}

// MoveValidPagesRouted relocates every live page of src to the block chosen
// by route. Pages routed to a full block stay in src. If src still holds
// live pages afterwards, it returns the first full destination met and true;
// if src was drained it returns false.
func (d *Device) MoveValidPagesRouted(
	src BlockID,
	route func(LogicalPageID) (BlockID, GroupID),
) (BlockID, bool) {
	d.blockMustExist(src)

	s := d.blocks[src]
	d.attributeGC(s.writtenByGC)

	var firstFull BlockID
	foundFull := false
	moved := uint64(0)

	for pos := uint64(0); pos < d.pagesPerBlock; pos++ {
		page := s.ptl[pos]
		if page == NoPage {
			continue
		}

		dst, group := route(page)
		d.blockMustExist(dst)

		if dst == src {
			panic(fmt.Sprintf(
				"page %d routed back into its source block %d", page, src))
		}

		t := d.blocks[dst]
		if t.CanWrite() {
			t.writtenByGC = true
			d.commit(page, t, group, true)
			moved++
		} else if !foundFull {
			firstFull = dst
			foundFull = true
		}
	}

	drained := s.AllInvalid()
	d.hookMove(src, moved, drained)

	if drained {
		return 0, false
	}

	return firstFull, true
}

func (d *Device) hookMove(src BlockID, moved uint64, drained bool) {
	if d.NumHooks() == 0 {
		return
	}

	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosPagesMoved,
		Item:   src,
		Detail: MoveDetail{Moved: moved, Drained: drained},
	})
}

// CompactUntilFreeBlock reclaims one block using an accumulator block that
// absorbs the live pages of successive victims. If hasAcc is false or every
// slot of acc holds a live page, the first victim is compacted in place and
// becomes the accumulator. Whenever the accumulator fills before a victim is
// drained, the victim is compacted and takes over as accumulator. A victim
// that is the accumulator itself is compacted in place. The first victim
// that ends up drained is erased. It returns the erased block and the
// current accumulator.
func (d *Device) CompactUntilFreeBlock(
	acc BlockID,
	hasAcc bool,
	next func() BlockID,
) (freed BlockID, accumulator BlockID) {
	if !hasAcc || d.Block(acc).AllValid() {
		acc = d.nextVictim(next)
		d.CompactBlock(acc)
	}

	victim := d.nextVictim(next)
	for {
		if victim == acc {
			d.CompactBlock(acc)
			victim = d.nextVictim(next)

			continue
		}

		if !d.MoveValidPagesTo(victim, acc) {
			break
		}

		d.CompactBlock(victim)
		acc = victim
		victim = d.nextVictim(next)
	}

	d.EraseBlock(victim)

	return victim, acc
}

// CompactUntilFreeBlockGrouped is the multi-stream form of
// CompactUntilFreeBlock. Live pages are placed by route. When a victim cannot
// be drained because a destination is full, the victim is compacted, tagged
// with the group of that destination and handed to regroup so the caller can
// use it as the group's new destination. The first drained victim is erased
// and returned.
//
// The group of a victim is not checked against group, and pages moved into a
// regrouped victim may belong to other groups.
func (d *Device) CompactUntilFreeBlockGrouped(
	group GroupID,
	next func(GroupID) BlockID,
	route func(LogicalPageID) (BlockID, GroupID),
	regroup func(GroupID, BlockID),
) BlockID {
	nextInGroup := func() BlockID { return next(group) }

	victim := d.nextVictim(nextInGroup)
	for {
		fullDst, pending := d.MoveValidPagesRouted(victim, route)
		if !pending {
			break
		}

		dst := d.blocks[fullDst]
		if dst.group == NoGroup {
			panic(fmt.Sprintf("full destination %s has no group", dst))
		}

		d.CompactBlock(victim)
		d.blocks[victim].group = dst.group
		regroup(dst.group, victim)

		victim = d.nextVictim(nextInGroup)
	}

	d.EraseBlock(victim)

	return victim
}

// CompactVictimChain reclaims the first block of a chain of victims. Walking
// from the tail, each block is compacted and then receives the live pages of
// its predecessor. The head of the chain must end up without live pages; it
// is erased and returned.
func (d *Device) CompactVictimChain(victims []BlockID) BlockID {
	if len(victims) == 0 {
		panic("victim chain must not be empty")
	}

	for _, id := range victims {
		d.blockMustExist(id)
	}

	for i := len(victims) - 1; i > 0; i-- {
		d.CompactBlock(victims[i])
		d.MoveValidPagesTo(victims[i-1], victims[i])
	}

	head := victims[0]
	d.EraseBlock(head)

	return head
}

func (d *Device) nextVictim(next func() BlockID) BlockID {
	id := next()
	d.blockMustExist(id)

	if !d.blocks[id].IsGCEligible() {
		panic(fmt.Sprintf("victim %s is not GC-eligible", d.blocks[id]))
	}

	return id
}

func (d *Device) nextEraseAge() int64 {
	age := d.eraseAge
	d.eraseAge++

	return age
}

func (d *Device) attributeGC(prevWrittenByGC bool) {
	if prevWrittenByGC {
		d.gcedGCWritten++
	} else {
		d.gcedHostWritten++
	}
}

func (d *Device) blockMustExist(id BlockID) {
	if uint64(id) >= d.blockCount {
		panic(fmt.Sprintf("block %d out of range [0, %d)", id, d.blockCount))
	}
}

func (d *Device) pageMustExist(page LogicalPageID) {
	if uint64(page) >= d.logicalPageCount {
		panic(fmt.Sprintf("logical page %d out of range [0, %d)",
			page, d.logicalPageCount))
	}
}
