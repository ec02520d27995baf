package jobs

import (
	"container/heap"
	"time"

	"github.com/yourusername/stocktester/internal/models"
)

// queueItem is a job waiting for a worker
type queueItem struct {
	ID         string
	Kind       models.JobKind
	Priority   int
	EnqueuedAt time.Time
	seq        uint64
	index      int
}

// jobQueue orders jobs by descending priority, FIFO within a priority.
// It implements heap.Interface and is not safe for concurrent use.
type jobQueue struct {
	items []*queueItem
	byID  map[string]*queueItem
	seq   uint64
}

func newJobQueue() *jobQueue {
	return &jobQueue{byID: make(map[string]*queueItem)}
}

func (q *jobQueue) Len() int { return len(q.items) }

func (q *jobQueue) Less(i, j int) bool {
	if q.items[i].Priority != q.items[j].Priority {
		return q.items[i].Priority > q.items[j].Priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *jobQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *jobQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
	q.byID[item.ID] = item
}

func (q *jobQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	delete(q.byID, item.ID)
	return item
}

// add pushes a job unless it is already queued
func (q *jobQueue) add(item *queueItem) bool {
	if _, ok := q.byID[item.ID]; ok {
		return false
	}
	q.seq++
	item.seq = q.seq
	heap.Push(q, item)
	return true
}

// next pops the highest priority job
func (q *jobQueue) next() *queueItem {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*queueItem)
}

// remove drops a queued job by id
func (q *jobQueue) remove(id string) bool {
	item, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(q, item.index)
	return true
}
