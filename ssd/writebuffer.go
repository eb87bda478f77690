package ssd

import "container/list"

// writeBuffer is an LRU staging area for host writes. The front of the list
// is the most recently written page.
type writeBuffer struct {
	capacity uint64
	entries  *list.List
	index    map[LogicalPageID]*list.Element
}

func newWriteBuffer(capacity uint64) *writeBuffer {
	return &writeBuffer{
		capacity: capacity,
		entries:  list.New(),
		index:    make(map[LogicalPageID]*list.Element),
	}
}

func (w *writeBuffer) enabled() bool {
	return w.capacity > 0
}

func (w *writeBuffer) len() int {
	return w.entries.Len()
}

func (w *writeBuffer) contains(page LogicalPageID) bool {
	_, found := w.index[page]
	return found
}

// stage inserts or refreshes page. It reports whether the page was already
// staged.
func (w *writeBuffer) stage(page LogicalPageID) (hit bool) {
	elem, found := w.index[page]
	if found {
		w.entries.MoveToFront(elem)
		return true
	}

	w.index[page] = w.entries.PushFront(page)

	return false
}

// overflowing tells if the buffer holds more pages than its capacity.
func (w *writeBuffer) overflowing() bool {
	return uint64(w.entries.Len()) > w.capacity
}

// evict removes and returns the least recently used page.
func (w *writeBuffer) evict() (LogicalPageID, bool) {
	elem := w.entries.Back()
	if elem == nil {
		return 0, false
	}

	page := elem.Value.(LogicalPageID)
	w.entries.Remove(elem)
	delete(w.index, page)

	return page, true
}
