package util

import (
	"container/heap"
	"fmt"
)

// Deadline is one scheduled key inside a MapHeap.
type Deadline[K comparable] struct {
	Key K      // Key the deadline belongs to
	At  uint64 // Point in time (ms) the deadline is due
	pos int    // Position inside the heap slice, maintained by heap.Interface
}

func (d *Deadline[K]) String() string {
	return fmt.Sprintf("{Key: %v, At: %d}", d.Key, d.At)
}

// MapHeap is a min-heap of deadlines that can also be addressed by key.
// Each key is scheduled at most once; scheduling it again moves it.
//
// The maple engine keeps one MapHeap for expirations and one for deletions
// per shard and pops everything that is due on every GC sweep.
//
// Thread-safety: MapHeap is not safe for concurrent use.
type MapHeap[K comparable] struct {
	items []*Deadline[K]
	byKey map[K]*Deadline[K]
}

// NewMapHeap creates an empty MapHeap.
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items: make([]*Deadline[K], 0),
		byKey: make(map[K]*Deadline[K]),
	}
}

// --------------------------------------------------------------------------
// heap.Interface (do not call directly, use the methods below)
// --------------------------------------------------------------------------

func (h *MapHeap[K]) Len() int { return len(h.items) }

func (h *MapHeap[K]) Less(i, j int) bool { return h.items[i].At < h.items[j].At }

func (h *MapHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].pos = i
	h.items[j].pos = j
}

func (h *MapHeap[K]) Push(x interface{}) {
	d := x.(*Deadline[K])
	d.pos = len(h.items)
	h.items = append(h.items, d)
	h.byKey[d.Key] = d
}

func (h *MapHeap[K]) Pop() interface{} {
	last := len(h.items) - 1
	d := h.items[last]
	h.items[last] = nil
	h.items = h.items[:last]
	d.pos = -1
	delete(h.byKey, d.Key)
	return d
}

// --------------------------------------------------------------------------
// Keyed access
// --------------------------------------------------------------------------

// Schedule sets the deadline of key to at, inserting the key if needed.
func (h *MapHeap[K]) Schedule(key K, at uint64) {
	if d, ok := h.byKey[key]; ok {
		d.At = at
		heap.Fix(h, d.pos)
		return
	}
	heap.Push(h, &Deadline[K]{Key: key, At: at})
}

// Cancel removes key from the heap and returns its former deadline.
func (h *MapHeap[K]) Cancel(key K) (uint64, bool) {
	d, ok := h.byKey[key]
	if !ok {
		return 0, false
	}
	heap.Remove(h, d.pos)
	return d.At, true
}

// Peek returns the earliest deadline without removing it.
func (h *MapHeap[K]) Peek() (Deadline[K], bool) {
	if len(h.items) == 0 {
		return Deadline[K]{}, false
	}
	return *h.items[0], true
}

// PopDue removes and returns all keys whose deadline is <= now, earliest first.
func (h *MapHeap[K]) PopDue(now uint64) []K {
	var due []K
	for len(h.items) > 0 && h.items[0].At <= now {
		d := heap.Pop(h).(*Deadline[K])
		due = append(due, d.Key)
	}
	return due
}

// Contains reports whether key is scheduled.
func (h *MapHeap[K]) Contains(key K) bool {
	_, ok := h.byKey[key]
	return ok
}

// Get returns the deadline of key.
func (h *MapHeap[K]) Get(key K) (uint64, bool) {
	d, ok := h.byKey[key]
	if !ok {
		return 0, false
	}
	return d.At, true
}
