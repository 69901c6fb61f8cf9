package frame

import "sync"

// Queue is the mailbox between the driver callback and a worker. Its capacity is
// bounded by the number of slots registered with the driver, so it never grows
// past that.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []*Descriptor
	initialized bool
}

// NewQueue returns an uninitialized queue
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Init marks the queue ready and wakes waiters
func (q *Queue) Init() {
	q.mu.Lock()
	q.initialized = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Deinit marks the queue closed and wakes every waiter so it can exit
func (q *Queue) Deinit() {
	q.mu.Lock()
	q.initialized = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// IsInitialized reports whether the queue accepts frames
func (q *Queue) IsInitialized() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialized
}

// Add appends a frame and signals one waiter. It returns false when the queue
// has not been initialized.
func (q *Queue) Add(d *Descriptor) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.initialized {
		return false
	}
	q.items = append(q.items, d)
	q.cond.Signal()
	return true
}

// Get blocks until a frame is available and returns it. It returns nil once the
// queue is deinitialized.
func (q *Queue) Get() *Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.initialized && len(q.items) == 0 {
		q.cond.Wait()
	}
	if !q.initialized {
		return nil
	}
	d := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return d
}

// Flush drops every queued frame without signaling and returns them so the
// caller can hand them back to their owner.
func (q *Queue) Flush() []*Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued frames
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
