// Package ssd models the inside of a flash device: erase blocks, the
// logical-to-physical mapping table, and the primitives that write, relocate
// and erase pages.
package ssd

// LogicalPageID identifies a page in the address space visible to the host.
type LogicalPageID uint64

// PhysicalAddress is blockID*pagesPerBlock + position in block.
type PhysicalAddress uint64

// BlockID indexes the block array of a Device.
type BlockID uint64

// GroupID tags a block with the write stream that owns it.
type GroupID int64

const (
	// NoGroup marks a block that does not belong to any stream.
	NoGroup GroupID = -1

	// NoPage fills block table slots that do not hold a live page.
	NoPage LogicalPageID = ^LogicalPageID(0)

	// Unused is the mapping of a logical page that was never written.
	Unused PhysicalAddress = ^PhysicalAddress(0)

	// Staged is the mapping of a logical page that sits in the write buffer
	// and has no physical copy yet.
	Staged PhysicalAddress = Unused - 1
)

// MappingState describes how a logical page currently resolves.
type MappingState int

// The states a logical page mapping can be in.
const (
	MappingUnused MappingState = iota
	MappingStaged
	MappingResolved
)

func (s MappingState) String() string {
	switch s {
	case MappingUnused:
		return "unused"
	case MappingStaged:
		return "staged"
	case MappingResolved:
		return "resolved"
	default:
		return "unknown"
	}
}
