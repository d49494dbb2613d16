package waitlist

import (
	"container/heap"
	"sync"

	"parkcore/internal/entities"
)

type item struct {
	entry entities.WaitlistEntry
	index int
}

type entryHeap []*item

func (h entryHeap) Len() int { return len(h) }

// Less orders by score descending, ties broken by earliest enqueue time, so
// equal-priority entries are served in request order and nobody starves.
func (h entryHeap) Less(i, j int) bool {
	if h[i].entry.Score != h[j].entry.Score {
		return h[i].entry.Score > h[j].entry.Score
	}
	return h[i].entry.EnqueuedAt.Before(h[j].entry.EnqueuedAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is the priority-ordered set of bookings awaiting a freed slot.
type Queue struct {
	mu    sync.Mutex
	items entryHeap
	byID  map[string]*item
}

func New() *Queue {
	return &Queue{byID: make(map[string]*item)}
}

// Push enqueues an entry, replacing any previous entry for the same booking.
func (q *Queue) Push(e entities.WaitlistEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if old, ok := q.byID[e.BookingID]; ok {
		heap.Remove(&q.items, old.index)
	}
	it := &item{entry: e}
	q.byID[e.BookingID] = it
	heap.Push(&q.items, it)
}

// Remove drops the booking's entry if present.
func (q *Queue) Remove(bookingID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[bookingID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, it.index)
	delete(q.byID, bookingID)
	return true
}

// Rescore updates the entry's priority in place and returns the updated
// entry. A late emergency bid only needs this re-insert to jump the queue.
func (q *Queue) Rescore(bookingID string, score int) (entities.WaitlistEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[bookingID]
	if !ok {
		return entities.WaitlistEntry{}, false
	}
	it.entry.Score = score
	heap.Fix(&q.items, it.index)
	return it.entry, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// NextFor pops the highest-priority entry compatible with the freed interval
// on the given spot: its constraints must match the spot and its requested
// window must overlap the freed window. Incompatible entries keep their place.
func (q *Queue) NextFor(spot entities.Spot, freed entities.TimeWindow) (entities.WaitlistEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []*item
	for len(q.items) > 0 {
		it := heap.Pop(&q.items).(*item)
		if it.entry.Constraints.Matches(spot) && it.entry.Window.Overlaps(freed) {
			delete(q.byID, it.entry.BookingID)
			for _, s := range skipped {
				heap.Push(&q.items, s)
			}
			return it.entry, true
		}
		skipped = append(skipped, it)
	}
	for _, s := range skipped {
		heap.Push(&q.items, s)
	}
	return entities.WaitlistEntry{}, false
}

// Snapshot returns a copy of all entries, unordered. The repository persists
// these so a restart can rebuild the queue.
func (q *Queue) Snapshot() []entities.WaitlistEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]entities.WaitlistEntry, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it.entry)
	}
	return out
}
