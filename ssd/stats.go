package ssd

import "fmt"

// PhysicalWrites returns the number of page writes performed by the flash
// since construction or the last ResetPhysicalWrites, including writes caused
// by relocation.
func (d *Device) PhysicalWrites() uint64 {
	return d.physicalWrites
}

// ResetPhysicalWrites zeroes the physical write counter.
func (d *Device) ResetPhysicalWrites() {
	d.physicalWrites = 0
}

// UpdateCount returns how many times the host committed the logical page.
func (d *Device) UpdateCount(page LogicalPageID) uint64 {
	d.pageMustExist(page)
	return d.updateCount[page]
}

// GCUpdateCount returns how many times the logical page was rewritten by
// garbage collection.
func (d *Device) GCUpdateCount(page LogicalPageID) uint64 {
	d.pageMustExist(page)
	return d.gcUpdateCount[page]
}

// EraseAge returns the device-wide erase counter. Every erase and every
// compaction advances it by one.
func (d *Device) EraseAge() int64 {
	return d.eraseAge
}

// GCedHostWritten returns the number of GC events whose source block had been
// filled by the host.
func (d *Device) GCedHostWritten() uint64 {
	return d.gcedHostWritten
}

// GCedGCWritten returns the number of GC events whose source block had been
// filled by an earlier compaction.
func (d *Device) GCedGCWritten() uint64 {
	return d.gcedGCWritten
}

// ResetGCAttribution zeroes the GCedHostWritten and GCedGCWritten counters.
func (d *Device) ResetGCAttribution() {
	d.gcedHostWritten = 0
	d.gcedGCWritten = 0
}

// CountWrittenByGC returns the number of blocks last filled by compaction.
func (d *Device) CountWrittenByGC() uint64 {
	n := uint64(0)

	for _, b := range d.blocks {
		if b.writtenByGC {
			n++
		}
	}

	return n
}

// GenerationStat summarizes the blocks that share a GC generation.
type GenerationStat struct {
	Generation int64
	Blocks     uint64
	ValidPages uint64

	// MinValidFull is the smallest valid count among the full blocks of the
	// generation. HasFull is false when the generation has no full block.
	MinValidFull uint64
	HasFull      bool
}

// Generations groups blocks by GC generation. Generations at or above
// maxGeneration-1 are folded into the last entry.
func (d *Device) Generations(maxGeneration int) []GenerationStat {
	if maxGeneration <= 0 {
		panic("maxGeneration must be positive")
	}

	stats := make([]GenerationStat, maxGeneration)
	for i := range stats {
		stats[i].Generation = int64(i)
	}

	for _, b := range d.blocks {
		idx := b.gcGeneration
		if idx > int64(maxGeneration-1) {
			idx = int64(maxGeneration - 1)
		}

		s := &stats[idx]
		s.Blocks++
		s.ValidPages += b.validCount

		if b.IsFull() && (!s.HasFull || b.validCount < s.MinValidFull) {
			s.MinValidFull = b.validCount
			s.HasFull = true
		}
	}

	return stats
}

// ValidCountHistogram returns, for each possible valid count, the number of
// full blocks holding that many live pages.
func (d *Device) ValidCountHistogram() []uint64 {
	hist := make([]uint64, d.pagesPerBlock+1)

	for _, b := range d.blocks {
		if b.IsFull() {
			hist[b.validCount]++
		}
	}

	return hist
}

// CheckInvariants verifies the block counters and that the mapping table and
// the block tables agree in both directions. It returns the first violation
// found.
func (d *Device) CheckInvariants() error {
	for _, b := range d.blocks {
		if err := d.checkBlock(b); err != nil {
			return err
		}
	}

	for page, addr := range d.l2p {
		lpid := LogicalPageID(page)

		switch addr {
		case Unused:
			continue
		case Staged:
			if !d.buffer.contains(lpid) {
				return fmt.Errorf("page %d is staged but not in the write buffer",
					lpid)
			}
			continue
		}

		id := d.BlockOf(addr)
		if uint64(id) >= d.blockCount {
			return fmt.Errorf("page %d maps to block %d out of range", lpid, id)
		}

		b := d.blocks[id]
		if got := b.ptl[d.PositionOf(addr)]; got != lpid {
			return fmt.Errorf("page %d maps to slot %d of block %d holding %d",
				lpid, d.PositionOf(addr), id, got)
		}
	}

	return nil
}

func (d *Device) checkBlock(b *Block) error {
	if b.validCount > b.writeCursor || b.writeCursor > d.pagesPerBlock {
		return fmt.Errorf("%s breaks valid <= cursor <= %d", b, d.pagesPerBlock)
	}

	live := uint64(0)

	for pos, page := range b.ptl {
		if page == NoPage {
			continue
		}

		if uint64(pos) >= b.writeCursor {
			return fmt.Errorf("%s holds page %d beyond its cursor", b, page)
		}

		live++

		if uint64(page) >= d.logicalPageCount {
			return fmt.Errorf("%s holds out of range page %d", b, page)
		}

		want := d.AddressOf(b.id, uint64(pos))
		if d.l2p[page] != want {
			return fmt.Errorf("%s holds page %d at %d but the page maps to %d",
				b, page, pos, d.l2p[page])
		}
	}

	if live != b.validCount {
		return fmt.Errorf("%s counts %d valid pages but holds %d",
			b, b.validCount, live)
	}

	return nil
}
