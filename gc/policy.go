// Package gc provides garbage collection policies for a simulated flash
// device. A policy decides where host writes land and which blocks are
// reclaimed when the device runs out of writable blocks.
package gc

import (
	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/ssd"
)

// A Policy places host writes on a device and reclaims space.
type Policy interface {
	hooking.Hookable

	// WritePage writes a logical page on behalf of the host, running GC if
	// no writable block is left.
	WritePage(page ssd.LogicalPageID)

	// PerformGC reclaims at least one block and appends it to the free list.
	PerformGC()

	// Stats returns the counters accumulated since the last ResetStats.
	Stats() Stats

	// ResetStats zeroes the counters.
	ResetStats()

	// Name returns the name of the policy.
	Name() string
}

// A Flusher is a Policy that can drain the device write buffer into its own
// open blocks.
type Flusher interface {
	Flush() uint64
}

// Stats holds the counters of a policy.
type Stats struct {
	HostWrites     uint64
	GCInvocations  uint64
	BlocksFreed    uint64
	PagesRelocated uint64
}

// HookPosGCPerformed fires after every GC invocation. Item is the BlockID
// appended to the free list and Detail a GCDetail.
var HookPosGCPerformed = &hooking.HookPos{Name: "GCPerformed"}

// GCDetail describes a GC invocation.
type GCDetail struct {
	Relocated uint64
}
