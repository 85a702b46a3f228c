package queue

import (
	"container/heap"

	"github.com/Popie52/offlinesync/internal/model"
)

// index to track
type actionItem struct {
	action *model.Action
	index  int
}

type priorityQueue []*actionItem

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return Before(pq[i].action, pq[j].action) }

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*actionItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)

	item := old[n-1]
	old[n-1] = nil

	*pq = old[:n-1]
	return item
}

// Queue yields actions in dispatch order. It is not safe for concurrent
// use; stores that share one guard it with their own lock.
type Queue struct {
	pq priorityQueue
}

func New() *Queue {
	q := &Queue{}
	heap.Init(&q.pq)
	return q
}

func (q *Queue) Push(a *model.Action) {
	heap.Push(&q.pq, &actionItem{action: a})
}

// Pop removes the next action to send; ok is false when empty.
func (q *Queue) Pop() (a *model.Action, ok bool) {
	if q.pq.Len() == 0 {
		return nil, false
	}
	item := heap.Pop(&q.pq).(*actionItem)
	return item.action, true
}

func (q *Queue) Len() int { return q.pq.Len() }

// Before reports whether a is sent ahead of b: lower priority value first,
// then older creation time, then earlier insertion.
func Before(a, b *model.Action) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.Seq < b.Seq
}

// Ordered returns actions sorted by Before without touching the input.
func Ordered(actions []*model.Action) []*model.Action {
	q := New()
	for _, a := range actions {
		q.Push(a)
	}
	out := make([]*model.Action, 0, q.Len())
	for {
		a, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, a)
	}
}
