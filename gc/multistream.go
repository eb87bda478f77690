package gc

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/sim/naming"
	"github.com/sarchlab/flashsim/ssd"
)

const noBlock = ^ssd.BlockID(0)

// MultiStream separates pages by how often the host rewrites them. A page
// written n times so far belongs to stream min(G-1, bits.Len64(n)), so each
// stream holds pages of roughly the same update frequency. Every stream has
// its own block for host writes and its own block for relocated pages.
type MultiStream struct {
	naming.NamedBase
	hooking.HookableBase

	dev       *ssd.Device
	free      *FreeList
	hostHeads []ssd.BlockID
	gcHeads   []ssd.BlockID
	gcGroup   ssd.GroupID

	stats Stats
}

// Device returns the device the policy manages.
func (m *MultiStream) Device() *ssd.Device {
	return m.dev
}

// FreeList returns the list of blocks waiting to be opened.
func (m *MultiStream) FreeList() *FreeList {
	return m.free
}

// Streams returns the number of streams.
func (m *MultiStream) Streams() int {
	return len(m.hostHeads)
}

// HostHead returns the block receiving host writes of a stream.
func (m *MultiStream) HostHead(g ssd.GroupID) ssd.BlockID {
	return m.hostHeads[g]
}

// GCHead returns the block receiving relocated pages of a stream.
func (m *MultiStream) GCHead(g ssd.GroupID) ssd.BlockID {
	return m.gcHeads[g]
}

// StreamOf returns the stream a logical page currently belongs to.
func (m *MultiStream) StreamOf(page ssd.LogicalPageID) ssd.GroupID {
	n := bits.Len64(m.dev.UpdateCount(page))

	last := len(m.hostHeads) - 1
	if n > last {
		n = last
	}

	return ssd.GroupID(n)
}

// WritePage writes a logical page to the host block of its stream.
func (m *MultiStream) WritePage(page ssd.LogicalPageID) {
	m.stats.HostWrites++

	g := m.StreamOf(page)
	m.dev.WritePageToGroup(page, m.hostHead(g), g)
}

// Flush commits every page staged in the device write buffer into the host
// block of the first stream.
func (m *MultiStream) Flush() uint64 {
	return m.dev.FlushWriteBuffer(func() ssd.BlockID { return m.hostHead(0) })
}

func (m *MultiStream) hostHead(g ssd.GroupID) ssd.BlockID {
	if m.dev.Block(m.hostHeads[g]).CanWrite() {
		return m.hostHeads[g]
	}

	m.hostHeads[g] = noBlock

	if m.free.Len() == 0 {
		m.gcGroup = g
		m.PerformGC()
	}

	m.hostHeads[g] = m.free.Pop()

	return m.hostHeads[g]
}

// PerformGC reclaims one block, preferring victims from the stream that last
// ran out of space, and appends it to the free list.
func (m *MultiStream) PerformGC() {
	before := m.dev.PhysicalWrites()

	freed := m.dev.CompactUntilFreeBlockGrouped(
		m.gcGroup, m.selectVictim, m.route, m.regroup)
	m.free.Push(freed)

	relocated := m.dev.PhysicalWrites() - before
	m.stats.GCInvocations++
	m.stats.BlocksFreed++
	m.stats.PagesRelocated += relocated

	if m.NumHooks() > 0 {
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosGCPerformed,
			Item:   freed,
			Detail: GCDetail{Relocated: relocated},
		})
	}
}

func (m *MultiStream) selectVictim(g ssd.GroupID) ssd.BlockID {
	notHead := func(b *ssd.Block) bool { return !m.isHead(b.ID()) }

	id, found := minValid(m.dev, func(b *ssd.Block) bool {
		return b.Group() == g && notHead(b)
	})
	if found {
		return id
	}

	id, found = minValid(m.dev, notHead)
	if !found {
		panic(starvation(m.dev))
	}

	return id
}

func (m *MultiStream) route(
	page ssd.LogicalPageID,
) (ssd.BlockID, ssd.GroupID) {
	g := m.StreamOf(page)
	return m.gcHeads[g], g
}

func (m *MultiStream) regroup(g ssd.GroupID, id ssd.BlockID) {
	m.gcHeads[g] = id
}

func (m *MultiStream) isHead(id ssd.BlockID) bool {
	for i := range m.hostHeads {
		if m.hostHeads[i] == id || m.gcHeads[i] == id {
			return true
		}
	}

	return false
}

// Stats returns the counters accumulated since the last ResetStats.
func (m *MultiStream) Stats() Stats {
	return m.stats
}

// ResetStats zeroes the counters.
func (m *MultiStream) ResetStats() {
	m.stats = Stats{}
}

// MultiStreamBuilder can build MultiStream policies.
type MultiStreamBuilder struct {
	dev     *ssd.Device
	streams int
	hooks   []hooking.Hook
}

// MakeMultiStreamBuilder returns a MultiStreamBuilder with four streams.
func MakeMultiStreamBuilder() MultiStreamBuilder {
	return MultiStreamBuilder{streams: 4}
}

// WithDevice sets the device to manage.
func (b MultiStreamBuilder) WithDevice(dev *ssd.Device) MultiStreamBuilder {
	b.dev = dev
	return b
}

// WithStreams sets the number of streams.
func (b MultiStreamBuilder) WithStreams(streams int) MultiStreamBuilder {
	b.streams = streams
	return b
}

// WithHook registers a hook on the policy being built.
func (b MultiStreamBuilder) WithHook(hook hooking.Hook) MultiStreamBuilder {
	b.hooks = append(append([]hooking.Hook(nil), b.hooks...), hook)
	return b
}

// PolicyName returns the conventional name of the configured policy.
func (b MultiStreamBuilder) PolicyName() string {
	return fmt.Sprintf("multistream-g%d", b.streams)
}

// Build creates the policy and reserves a host block and a GC block for
// every stream.
func (b MultiStreamBuilder) Build(name string) *MultiStream {
	if b.dev == nil {
		panic("device is not set")
	}

	if b.streams <= 0 {
		panic("number of streams must be positive")
	}

	m := &MultiStream{
		NamedBase: naming.MakeNamedBase(name),
		dev:       b.dev,
		free:      NewFreeListFromDevice(b.dev),
		hostHeads: make([]ssd.BlockID, b.streams),
		gcHeads:   make([]ssd.BlockID, b.streams),
	}

	if m.free.Len() <= 2*b.streams {
		panic(fmt.Sprintf("%s has %d erased blocks, too few for %d streams",
			b.dev.Name(), m.free.Len(), b.streams))
	}

	for g := range m.hostHeads {
		m.hostHeads[g] = m.free.Pop()
		m.gcHeads[g] = m.free.Pop()
	}

	for _, h := range b.hooks {
		m.AcceptHook(h)
	}

	return m
}
