package ssd

import (
	"fmt"

	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/sim/naming"
)

// Common sizes.
const (
	KiB uint64 = 1 << 10
	MiB uint64 = 1 << 20
	GiB uint64 = 1 << 30
)

// Builder can build devices.
type Builder struct {
	capacity            uint64
	blockSize           uint64
	pageSize            uint64
	fillRatio           float64
	writeBufferFraction float64
	hooks               []hooking.Hook
}

// MakeBuilder returns a Builder with a 16 GiB device of 8 MiB erase blocks
// and 4 KiB pages, filled to 87.5%.
func MakeBuilder() Builder {
	return Builder{
		capacity:  16 * GiB,
		blockSize: 8 * MiB,
		pageSize:  4 * KiB,
		fillRatio: 0.875,
	}
}

// WithCapacity sets the raw capacity in bytes.
func (b Builder) WithCapacity(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithBlockSize sets the erase block size in bytes.
func (b Builder) WithBlockSize(blockSize uint64) Builder {
	b.blockSize = blockSize
	return b
}

// WithPageSize sets the page size in bytes.
func (b Builder) WithPageSize(pageSize uint64) Builder {
	b.pageSize = pageSize
	return b
}

// WithFillRatio sets the share of the raw capacity exposed to the host. It
// must be in (0, 1].
func (b Builder) WithFillRatio(fillRatio float64) Builder {
	b.fillRatio = fillRatio
	return b
}

// WithWriteBufferFraction sizes the write buffer as a fraction of the logical
// page count. Zero disables the buffer.
func (b Builder) WithWriteBufferFraction(fraction float64) Builder {
	b.writeBufferFraction = fraction
	return b
}

// WithHook registers a hook on the device being built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(append([]hooking.Hook(nil), b.hooks...), hook)
	return b
}

// Build creates a device with every block erased and every logical page
// unmapped.
func (b Builder) Build(name string) *Device {
	b.mustBeValid()

	d := &Device{
		NamedBase:      naming.MakeNamedBase(name),
		capacityBytes:  b.capacity,
		blockSizeBytes: b.blockSize,
		pageSizeBytes:  b.pageSize,
		fillRatio:      b.fillRatio,
		blockCount:     b.capacity / b.blockSize,
		pagesPerBlock:  b.blockSize / b.pageSize,
	}

	d.physicalPageCount = d.blockCount * d.pagesPerBlock
	d.logicalPageCount = uint64(float64(b.capacity/b.pageSize) * b.fillRatio)

	if d.logicalPageCount == 0 {
		panic("device exposes no logical page")
	}

	d.buffer = newWriteBuffer(
		uint64(float64(d.logicalPageCount) * b.writeBufferFraction))

	d.blocks = make([]*Block, d.blockCount)
	for i := range d.blocks {
		d.blocks[i] = newBlock(BlockID(i), d.pagesPerBlock)
	}

	d.l2p = make([]PhysicalAddress, d.logicalPageCount)
	for i := range d.l2p {
		d.l2p[i] = Unused
	}

	d.updateCount = make([]uint64, d.logicalPageCount)
	d.gcUpdateCount = make([]uint64, d.logicalPageCount)

	for _, h := range b.hooks {
		d.AcceptHook(h)
	}

	return d
}

func (b Builder) mustBeValid() {
	switch {
	case b.pageSize == 0:
		panic("page size must be positive")
	case b.blockSize == 0:
		panic("block size must be positive")
	case b.blockSize < b.pageSize:
		panic(fmt.Sprintf("block size %d is smaller than page size %d",
			b.blockSize, b.pageSize))
	case b.blockSize%b.pageSize != 0:
		panic(fmt.Sprintf("block size %d is not a multiple of page size %d",
			b.blockSize, b.pageSize))
	case b.capacity < b.blockSize:
		panic(fmt.Sprintf("capacity %d is smaller than one block of %d",
			b.capacity, b.blockSize))
	case !(b.fillRatio > 0 && b.fillRatio <= 1):
		panic(fmt.Sprintf("fill ratio %v is outside (0, 1]", b.fillRatio))
	case !(b.writeBufferFraction >= 0 && b.writeBufferFraction < 1):
		panic(fmt.Sprintf("write buffer fraction %v is outside [0, 1)",
			b.writeBufferFraction))
	}
}
