// Package ringbuf provides a bounded in-memory byte ring with blocking
// reads. It is the input side of every virtual connection: the transport
// writes whole datagrams with Offer, the packet decoder reads a stream.
package ringbuf

import (
    "io"
    "sync"
)

// Buffer is a fixed-capacity FIFO of bytes. Safe for concurrent use.
type Buffer struct {
    mu      sync.Mutex
    cond    *sync.Cond
    data    []byte
    head    int
    n       int
    err     error
    dropped uint64
}

// New returns a buffer holding at most size bytes.
func New(size int) *Buffer {
    b := &Buffer{data: make([]byte, size)}
    b.cond = sync.NewCond(&b.mu)
    return b
}

// Offer appends p only if it fits entirely. It never blocks and reports
// false when p was dropped.
func (b *Buffer) Offer(p []byte) bool {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.err != nil || len(p) > len(b.data)-b.n {
        b.dropped++
        return false
    }
    b.put(p)
    b.cond.Broadcast()
    return true
}

// Write appends p, waiting for space as needed. It fails once the buffer
// is closed.
func (b *Buffer) Write(p []byte) (int, error) {
    b.mu.Lock()
    defer b.mu.Unlock()
    written := 0
    for len(p) > 0 {
        for b.err == nil && b.n == len(b.data) {
            b.cond.Wait()
        }
        if b.err != nil { return written, b.err }
        k := min(len(p), len(b.data)-b.n)
        b.put(p[:k])
        p = p[k:]
        written += k
        b.cond.Broadcast()
    }
    return written, nil
}

// Read blocks until data is available. Buffered bytes are still returned
// after Close; then the close error is reported.
func (b *Buffer) Read(p []byte) (int, error) {
    if len(p) == 0 { return 0, nil }
    b.mu.Lock()
    defer b.mu.Unlock()
    for b.n == 0 && b.err == nil {
        b.cond.Wait()
    }
    if b.n == 0 { return 0, b.err }
    k := min(len(p), b.n)
    first := min(k, len(b.data)-b.head)
    copy(p, b.data[b.head:b.head+first])
    copy(p[first:k], b.data[:k-first])
    b.head = (b.head + k) % len(b.data)
    b.n -= k
    b.cond.Broadcast()
    return k, nil
}

// CloseWithError makes later writes fail with err and reads fail with err
// once drained. A nil err means io.EOF. Only the first call has effect.
func (b *Buffer) CloseWithError(err error) {
    if err == nil { err = io.EOF }
    b.mu.Lock()
    if b.err == nil { b.err = err }
    b.mu.Unlock()
    b.cond.Broadcast()
}

// Close is CloseWithError(io.EOF).
func (b *Buffer) Close() error {
    b.CloseWithError(nil)
    return nil
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.n
}

// Dropped returns how many Offer calls were refused.
func (b *Buffer) Dropped() uint64 {
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.dropped
}

// put copies p into free space. Caller holds mu and checked capacity.
func (b *Buffer) put(p []byte) {
    tail := (b.head + b.n) % len(b.data)
    k := copy(b.data[tail:], p)
    copy(b.data, p[k:])
    b.n += len(p)
}
