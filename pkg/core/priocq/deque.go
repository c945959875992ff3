package priocq

import (
    "context"
    "errors"
    "sync"
)

// ErrClosed is returned by Pop once the deque is closed and drained.
var ErrClosed = errors.New("priocq: deque closed")

// Deque is an unbounded FIFO where urgent items can jump to the front.
// Pop blocks until an item is available, the context ends or the deque is
// closed. Safe for concurrent use.
type Deque[T any] struct {
    mu     sync.Mutex
    buf    []T
    head   int
    n      int
    ready  chan struct{}
    done   chan struct{}
    closed bool
}

func NewDeque[T any]() *Deque[T] {
    return &Deque[T]{buf: make([]T, 16), ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// PushBack appends v. It reports false if the deque is closed.
func (q *Deque[T]) PushBack(v T) bool {
    q.mu.Lock()
    if q.closed {
        q.mu.Unlock()
        return false
    }
    q.grow()
    q.buf[(q.head+q.n)%len(q.buf)] = v
    q.n++
    q.mu.Unlock()
    q.signal()
    return true
}

// PushFront inserts v ahead of every queued item.
func (q *Deque[T]) PushFront(v T) bool {
    q.mu.Lock()
    if q.closed {
        q.mu.Unlock()
        return false
    }
    q.grow()
    q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
    q.buf[q.head] = v
    q.n++
    q.mu.Unlock()
    q.signal()
    return true
}

// Push is PushFront when urgent, PushBack otherwise.
func (q *Deque[T]) Push(v T, urgent bool) bool {
    if urgent { return q.PushFront(v) }
    return q.PushBack(v)
}

// TryPop removes the front item without blocking.
func (q *Deque[T]) TryPop() (T, bool) {
    q.mu.Lock()
    defer q.mu.Unlock()
    var zero T
    if q.n == 0 { return zero, false }
    v := q.buf[q.head]
    q.buf[q.head] = zero
    q.head = (q.head + 1) % len(q.buf)
    q.n--
    if q.n > 0 { q.signal() }
    return v, true
}

// Pop removes the front item, waiting for one if necessary. Items queued
// before Close are still returned; after that Pop reports ErrClosed.
func (q *Deque[T]) Pop(ctx context.Context) (T, error) {
    for {
        if v, ok := q.TryPop(); ok { return v, nil }
        select {
        case <-ctx.Done():
            var zero T
            return zero, ctx.Err()
        case <-q.done:
            if v, ok := q.TryPop(); ok { return v, nil }
            var zero T
            return zero, ErrClosed
        case <-q.ready:
        }
    }
}

func (q *Deque[T]) Len() int {
    q.mu.Lock()
    defer q.mu.Unlock()
    return q.n
}

// Close rejects further pushes and wakes every waiter.
func (q *Deque[T]) Close() {
    q.mu.Lock()
    defer q.mu.Unlock()
    if q.closed { return }
    q.closed = true
    close(q.done)
}

func (q *Deque[T]) signal() {
    select {
    case q.ready <- struct{}{}:
    default:
    }
}

// grow doubles the ring when full. Caller holds mu.
func (q *Deque[T]) grow() {
    if q.n < len(q.buf) { return }
    nb := make([]T, len(q.buf)*2)
    for i := 0; i < q.n; i++ {
        nb[i] = q.buf[(q.head+i)%len(q.buf)]
    }
    q.buf = nb
    q.head = 0
}
