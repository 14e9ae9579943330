package ctormock

import (
	"sync"
	"time"
)

// handoffQueue is an unbounded FIFO of constructed instances with
// non-blocking and bounded-blocking polls.
type handoffQueue struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{} // capacity 1; a pending token means "maybe non-empty"
	closed chan struct{}
	once   sync.Once
}

func newHandoffQueue() *handoffQueue {
	return &handoffQueue{
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (q *handoffQueue) push(v any) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.notify()
}

func (q *handoffQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *handoffQueue) poll() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	v := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Another waiter may be parked on the token we consumed.
		q.notify()
	}
	return v, true
}

func (q *handoffQueue) pollTimeout(timeout time.Duration) (any, bool) {
	if v, ok := q.poll(); ok || timeout <= 0 {
		return v, ok
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.signal:
			if v, ok := q.poll(); ok {
				return v, true
			}
		case <-q.closed:
			return nil, false
		case <-timer.C:
			return q.poll()
		}
	}
}

func (q *handoffQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close discards pending items and releases blocked pollers.
func (q *handoffQueue) close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.items = nil
		q.mu.Unlock()
		close(q.closed)
	})
}
