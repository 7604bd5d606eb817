package rabbitmq

import (
	"sync"

	"github.com/sf7293/event-connector/internal/domain"
)

type pendingItem struct {
	event      domain.Event
	routingKey string
}

// pendingQueue is an unbounded FIFO with many writers and a single reader.
// Closing it is the stop sentinel: the reader still receives everything pushed before close.
type pendingQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []pendingItem
	closed bool
}

func newPendingQueue() *pendingQueue {
	q := &pendingQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push never blocks. It reports false when the queue is already closed.
func (q *pendingQueue) push(item pendingItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// pop blocks until an item is available. ok is false once the queue is closed and empty.
func (q *pendingQueue) pop() (item pendingItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		return pendingItem{}, false
	}

	item = q.items[0]
	q.items[0] = pendingItem{}
	q.items = q.items[1:]
	return item, true
}

func (q *pendingQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// discard closes the queue and drops everything still in it, returning how many items were dropped.
func (q *pendingQueue) discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.items)
	q.items = nil
	q.closed = true
	q.cond.Broadcast()
	return dropped
}

func (q *pendingQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
