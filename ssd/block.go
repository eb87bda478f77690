package ssd

import "fmt"

// A Block is a single erase unit. Blocks are owned by a Device; everything
// outside the package only reads them.
type Block struct {
	id           BlockID
	writeCursor  uint64
	validCount   uint64
	eraseCount   uint64
	ptl          []LogicalPageID
	gcAge        int64
	gcGeneration int64
	group        GroupID
	writtenByGC  bool
}

func newBlock(id BlockID, pagesPerBlock uint64) *Block {
	b := &Block{
		id:    id,
		ptl:   make([]LogicalPageID, pagesPerBlock),
		gcAge: -1,
		group: NoGroup,
	}

	for i := range b.ptl {
		b.ptl[i] = NoPage
	}

	return b
}

// ID returns the index of the block in its device.
func (b *Block) ID() BlockID {
	return b.id
}

// PagesPerBlock returns the number of page slots in the block.
func (b *Block) PagesPerBlock() uint64 {
	return uint64(len(b.ptl))
}

// WriteCursor returns the next position to be written.
func (b *Block) WriteCursor() uint64 {
	return b.writeCursor
}

// ValidCount returns the number of slots still referenced by the mapping.
func (b *Block) ValidCount() uint64 {
	return b.validCount
}

// InvalidCount returns the number of written slots whose page has been
// superseded.
func (b *Block) InvalidCount() uint64 {
	return b.writeCursor - b.validCount
}

// EraseCount returns how many times the block has been erased or compacted.
func (b *Block) EraseCount() uint64 {
	return b.eraseCount
}

// GCAge returns the value of the device erase counter at the last erase or
// compaction, or -1 if the block was never erased.
func (b *Block) GCAge() int64 {
	return b.gcAge
}

// GCGeneration returns the number of compactions since the last full erase.
func (b *Block) GCGeneration() int64 {
	return b.gcGeneration
}

// Group returns the stream the block belongs to.
func (b *Block) Group() GroupID {
	return b.group
}

// WrittenByGC tells if the block was last filled by a compaction rather than
// by host writes.
func (b *Block) WrittenByGC() bool {
	return b.writtenByGC
}

// PageAt returns the logical page held at pos, or NoPage.
func (b *Block) PageAt(pos uint64) LogicalPageID {
	return b.ptl[pos]
}

// IsErased tells if nothing has been written since the last erase.
func (b *Block) IsErased() bool {
	return b.writeCursor == 0
}

// IsFull tells if every slot has been written.
func (b *Block) IsFull() bool {
	return b.writeCursor == uint64(len(b.ptl))
}

// CanWrite tells if the block still has free slots.
func (b *Block) CanWrite() bool {
	return b.writeCursor < uint64(len(b.ptl))
}

// AllValid tells if every slot of the block holds a live page.
func (b *Block) AllValid() bool {
	return b.validCount == uint64(len(b.ptl))
}

// AllInvalid tells if the block holds no live page.
func (b *Block) AllInvalid() bool {
	return b.validCount == 0
}

// IsGCEligible tells if the block can be chosen as a GC victim: it is full
// and at least one of its pages has been superseded.
func (b *Block) IsGCEligible() bool {
	return b.IsFull() && b.validCount < b.writeCursor
}

func (b *Block) String() string {
	return fmt.Sprintf(
		"block %d (cursor %d, valid %d, age %d, gen %d, group %d, gc %t)",
		b.id, b.writeCursor, b.validCount,
		b.gcAge, b.gcGeneration, b.group, b.writtenByGC)
}

func (b *Block) append(page LogicalPageID) uint64 {
	if !b.CanWrite() {
		panic(fmt.Sprintf("write to full %s", b))
	}

	if b.ptl[b.writeCursor] != NoPage {
		panic(fmt.Sprintf("slot %d of %s is not empty", b.writeCursor, b))
	}

	pos := b.writeCursor
	b.ptl[pos] = page
	b.writeCursor++
	b.validCount++

	return pos
}

func (b *Block) invalidate(pos uint64) {
	if b.ptl[pos] == NoPage {
		panic(fmt.Sprintf("slot %d of %s is already unused", pos, b))
	}

	b.ptl[pos] = NoPage
	b.validCount--
}

// shiftValidToFront moves the live pages to the front of the table and
// reports how many there are. The mapping table is not touched.
func (b *Block) shiftValidToFront() uint64 {
	n := uint64(0)

	for pos, page := range b.ptl {
		if page == NoPage {
			continue
		}

		b.ptl[n] = page
		if uint64(pos) != n {
			b.ptl[pos] = NoPage
		}

		n++
	}

	b.writeCursor = n
	b.validCount = n

	return n
}

func (b *Block) stampErase(age int64) {
	b.eraseCount++
	b.gcAge = age
}

func (b *Block) erase(age int64) {
	for i := range b.ptl {
		b.ptl[i] = NoPage
	}

	b.writeCursor = 0
	b.validCount = 0
	b.group = NoGroup
	b.writtenByGC = false
	b.gcGeneration = 0
	b.stampErase(age)
}
