package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"webcrawl/pkg/web"
)

// --- Priority Queue Implementation ---

// pqItem represents one scheduled request in the heap.
type pqItem struct {
	req   *web.Request
	seq   uint64 // insertion order, breaks priority ties FIFO
	index int    // heap index (required by heap interface)
}

// requestHeap implements heap.Interface. Higher Request.Priority pops
// first; equal priorities pop in insertion order.
type requestHeap []*pqItem

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push adds an element to the heap
func (h *requestHeap) Push(x any) {
	n := len(*h)
	item := x.(*pqItem)
	item.index = n
	*h = append(*h, item)
}

// Pop removes and returns the highest priority element from the heap
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

// Scheduler is the thread-safe request queue feeding the engine workers.
// Middlewares returning replacement requests (redirects, retries) land
// back here as fresh tasks.
type Scheduler struct {
	h       requestHeap
	mu      sync.Mutex
	cond    *sync.Cond // signals waiting workers when items arrive
	nextSeq uint64
	closed  bool
	log     *logrus.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *logrus.Logger) *Scheduler {
	s := &Scheduler{log: logger}
	s.cond = sync.NewCond(&s.mu)
	heap.Init(&s.h)
	return s
}

// Add enqueues a request. Requests added after Close are dropped.
func (s *Scheduler) Add(req *web.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Warnf("Attempted to add request to closed scheduler: %s", req.URL)
		return
	}

	heap.Push(&s.h, &pqItem{req: req, seq: s.nextSeq})
	s.nextSeq++
	s.cond.Signal()
}

// Pop retrieves and removes the highest priority request. It blocks while
// the queue is empty until an item arrives or the scheduler is closed.
// Returns nil and false once the scheduler is closed and drained.
func (s *Scheduler) Pop() (*web.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.h) == 0 {
		if s.closed {
			return nil, false
		}
		s.cond.Wait()
	}

	item := heap.Pop(&s.h).(*pqItem)
	return item.req, true
}

// Close signals that no more requests will be added. Waiting workers wake
// up and drain the remaining items before exiting.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
}

// Len returns the current number of queued requests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.h)
}
