package gc

import (
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/sim/naming"
	"github.com/sarchlab/flashsim/ssd"
)

// Greedy is the greedy family of policies. Host writes go to a single open
// block. When it fills, the next free block is opened, and when the free list
// is empty a GC invocation reclaims a block first.
//
// Pure greedy compacts the block with the fewest valid pages in place. The
// sampled form picks that block from a random sample. The accumulator form
// drains victims into a block kept across invocations until one victim is
// left empty.
type Greedy struct {
	naming.NamedBase
	hooking.HookableBase

	dev    *ssd.Device
	free   *FreeList
	open   ssd.BlockID
	selVic VictimSelector

	accumulate bool
	acc        ssd.BlockID
	hasAcc     bool

	stats Stats
}

// Device returns the device the policy manages.
func (g *Greedy) Device() *ssd.Device {
	return g.dev
}

// FreeList returns the list of blocks waiting to be opened.
func (g *Greedy) FreeList() *FreeList {
	return g.free
}

// OpenBlock returns the block receiving host writes.
func (g *Greedy) OpenBlock() ssd.BlockID {
	return g.open
}

// Accumulator returns the block that absorbs relocated pages in accumulator
// mode. The bool is false if there is none yet.
func (g *Greedy) Accumulator() (ssd.BlockID, bool) {
	return g.acc, g.hasAcc
}

// WritePage writes a logical page to the open block.
func (g *Greedy) WritePage(page ssd.LogicalPageID) {
	g.stats.HostWrites++
	g.dev.WritePage(page, g.writableBlock())
}

// Flush commits every page staged in the device write buffer.
func (g *Greedy) Flush() uint64 {
	return g.dev.FlushWriteBuffer(g.writableBlock)
}

func (g *Greedy) writableBlock() ssd.BlockID {
	if g.dev.Block(g.open).CanWrite() {
		return g.open
	}

	if g.free.Len() == 0 {
		g.PerformGC()
	}

	if !g.dev.Block(g.open).CanWrite() {
		g.open = g.free.Pop()
	}

	return g.open
}

// PerformGC reclaims one block and appends it to the free list. A reclaimed
// open block is not listed; it keeps receiving host writes.
func (g *Greedy) PerformGC() {
	before := g.dev.PhysicalWrites()

	var freed ssd.BlockID
	if g.accumulate {
		freed, g.acc = g.dev.CompactUntilFreeBlock(g.acc, g.hasAcc, g.selVic)
		g.hasAcc = true
	} else {
		freed = g.selVic()
		g.dev.CompactBlock(freed)
	}

	switch {
	case freed == g.open:
		// reclaimed in place
	case g.hasAcc && g.acc == g.open:
		g.free.Push(freed)
		g.open = g.free.Pop()
	default:
		g.free.Push(freed)
	}

	relocated := g.dev.PhysicalWrites() - before
	g.stats.GCInvocations++
	g.stats.BlocksFreed++
	g.stats.PagesRelocated += relocated

	if g.NumHooks() > 0 {
		g.InvokeHook(hooking.HookCtx{
			Domain: g,
			Pos:    HookPosGCPerformed,
			Item:   freed,
			Detail: GCDetail{Relocated: relocated},
		})
	}
}

// Stats returns the counters accumulated since the last ResetStats.
func (g *Greedy) Stats() Stats {
	return g.stats
}

// ResetStats zeroes the counters.
func (g *Greedy) ResetStats() {
	g.stats = Stats{}
}

// GreedyBuilder can build Greedy policies.
type GreedyBuilder struct {
	dev        *ssd.Device
	sampleSize int
	accumulate bool
	rng        *rand.Rand
	hooks      []hooking.Hook
}

// MakeGreedyBuilder returns a GreedyBuilder for a pure greedy policy.
func MakeGreedyBuilder() GreedyBuilder {
	return GreedyBuilder{}
}

// WithDevice sets the device to manage.
func (b GreedyBuilder) WithDevice(dev *ssd.Device) GreedyBuilder {
	b.dev = dev
	return b
}

// WithSampleSize sets the number of blocks sampled per victim selection. Zero
// selects pure greedy.
func (b GreedyBuilder) WithSampleSize(k int) GreedyBuilder {
	b.sampleSize = k
	return b
}

// WithAccumulator turns accumulator mode on or off.
func (b GreedyBuilder) WithAccumulator(accumulate bool) GreedyBuilder {
	b.accumulate = accumulate
	return b
}

// WithRand sets the random source used by sampled selection.
func (b GreedyBuilder) WithRand(rng *rand.Rand) GreedyBuilder {
	b.rng = rng
	return b
}

// WithHook registers a hook on the policy being built.
func (b GreedyBuilder) WithHook(hook hooking.Hook) GreedyBuilder {
	b.hooks = append(append([]hooking.Hook(nil), b.hooks...), hook)
	return b
}

// PolicyName returns the conventional name of the configured policy.
func (b GreedyBuilder) PolicyName() string {
	switch {
	case b.accumulate:
		return "greedy-s2r"
	case b.sampleSize > 0:
		return fmt.Sprintf("greedy-k%d", b.sampleSize)
	default:
		return "greedy"
	}
}

// Build creates the policy and opens the first free block of the device.
func (b GreedyBuilder) Build(name string) *Greedy {
	b.mustBeValid()

	g := &Greedy{
		NamedBase:  naming.MakeNamedBase(name),
		dev:        b.dev,
		free:       NewFreeListFromDevice(b.dev),
		accumulate: b.accumulate,
	}

	if b.sampleSize > 0 {
		g.selVic = SampledSelector(b.dev, b.sampleSize, b.rng)
	} else {
		g.selVic = GreedySelector(b.dev)
	}

	if g.free.Len() == 0 {
		panic(fmt.Sprintf("%s has no erased block to open", b.dev.Name()))
	}

	g.open = g.free.Pop()

	for _, h := range b.hooks {
		g.AcceptHook(h)
	}

	return g
}

func (b GreedyBuilder) mustBeValid() {
	if b.dev == nil {
		panic("device is not set")
	}

	if b.sampleSize < 0 {
		panic("sample size must not be negative")
	}

	if b.sampleSize > 0 && b.rng == nil {
		panic("sampled greedy requires a random source")
	}

	if b.sampleSize > 0 && b.accumulate {
		panic("accumulator mode selects victims by full scan")
	}
}
