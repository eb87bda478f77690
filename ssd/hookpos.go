package ssd

import "github.com/sarchlab/flashsim/sim/hooking"

// HookPosBlockErased fires after a block is fully erased. Item is the BlockID.
var HookPosBlockErased = &hooking.HookPos{Name: "BlockErased"}

// HookPosBlockCompacted fires after a block is compacted in place. Item is
// the BlockID and Detail a CompactionDetail.
var HookPosBlockCompacted = &hooking.HookPos{Name: "BlockCompacted"}

// HookPosPagesMoved fires after valid pages are relocated out of a block.
// Item is the source BlockID and Detail a MoveDetail.
var HookPosPagesMoved = &hooking.HookPos{Name: "PagesMoved"}

// CompactionDetail describes a self-compaction.
type CompactionDetail struct {
	Moved           uint64
	PrevWrittenByGC bool
	Generation      int64
}

// MoveDetail describes a relocation out of a source block.
type MoveDetail struct {
	Moved   uint64
	Drained bool
}
