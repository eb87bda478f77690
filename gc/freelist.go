package gc

import (
	"log"

	"github.com/sarchlab/flashsim/ssd"
)

// A FreeList is a FIFO queue of blocks that can accept writes, either erased
// or compacted.
type FreeList struct {
	capacity int
	elements []ssd.BlockID
}

// NewFreeList creates an empty FreeList that can hold up to capacity blocks.
func NewFreeList(capacity int) *FreeList {
	return &FreeList{capacity: capacity}
}

// NewFreeListFromDevice creates a FreeList holding every erased block of the
// device, in id order.
func NewFreeListFromDevice(dev *ssd.Device) *FreeList {
	l := NewFreeList(len(dev.Blocks()))

	for _, b := range dev.Blocks() {
		if b.IsErased() {
			l.Push(b.ID())
		}
	}

	return l
}

// Push appends a block to the tail of the list.
func (l *FreeList) Push(id ssd.BlockID) {
	if len(l.elements) >= l.capacity {
		log.Panic("free list overflow")
	}

	l.elements = append(l.elements, id)
}

// Pop removes and returns the block at the head of the list.
func (l *FreeList) Pop() ssd.BlockID {
	if len(l.elements) == 0 {
		log.Panic("free list is empty")
	}

	id := l.elements[0]
	l.elements = l.elements[1:]

	return id
}

// Peek returns the block at the head of the list without removing it.
func (l *FreeList) Peek() (ssd.BlockID, bool) {
	if len(l.elements) == 0 {
		return 0, false
	}

	return l.elements[0], true
}

// Contains tells if the block is in the list.
func (l *FreeList) Contains(id ssd.BlockID) bool {
	for _, e := range l.elements {
		if e == id {
			return true
		}
	}

	return false
}

// Len returns the number of blocks in the list.
func (l *FreeList) Len() int {
	return len(l.elements)
}

// Capacity returns the maximum number of blocks the list can hold.
func (l *FreeList) Capacity() int {
	return l.capacity
}
