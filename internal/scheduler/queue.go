package scheduler

import "container/heap"

// Priority orders tickets competing for the same rate-limited capacity.
// Higher values are served first, mirroring the original implementation's
// First/Second/Third priority bands (event-stream polling outranks bulk
// download pagination, which in turn outranks best-effort prefetches).
type Priority int

const (
	Low Priority = iota
	Medium
	High
)

type ticket struct {
	priority Priority
	seq      int64 // insertion order, breaks priority ties FIFO
	ready    chan struct{}
	index    int // heap.Interface bookkeeping
}

// ticketHeap is a max-heap on (priority, then insertion order): the
// highest-priority, earliest-enqueued ticket pops first.
type ticketHeap []*ticket

func (h ticketHeap) Len() int { return len(h) }

func (h ticketHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}

	return h[i].seq < h[j].seq
}

func (h ticketHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ticketHeap) Push(x any) {
	t := x.(*ticket)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *ticketHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]

	return t
}

var _ heap.Interface = (*ticketHeap)(nil)
