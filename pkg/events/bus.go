package events

import (
    "context"
    "errors"
    "slices"
    "sync"

    "paradis/pkg/core/priocq"
)

// ErrClosed is returned by Next once the subscription or bus is closed
// and every queued event has been consumed.
var ErrClosed = errors.New("events: closed")

// Bus fans events out to subscribers.
type Bus interface {
    // Publish queues ev for every subscriber whose topics match. It never
    // blocks.
    Publish(ev Event)
    // Subscribe returns a subscription for the given topics, or for all
    // topics when none are given.
    Subscribe(topics ...string) *Subscription
}

// Local is an in-process Bus. Each subscription owns an unbounded queue,
// so a slow consumer never stalls publishers or other consumers.
type Local struct {
    mu     sync.RWMutex
    subs   map[*Subscription]struct{}
    closed bool
}

func NewLocal() *Local { return &Local{subs: make(map[*Subscription]struct{})} }

func (b *Local) Publish(ev Event) {
    b.mu.RLock()
    defer b.mu.RUnlock()
    for s := range b.subs {
        if s.wants(ev.Topic()) { s.queue.PushBack(ev) }
    }
}

func (b *Local) Subscribe(topics ...string) *Subscription {
    s := &Subscription{bus: b, topics: slices.Clone(topics), queue: priocq.NewDeque[Event]()}
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed {
        s.queue.Close()
        return s
    }
    b.subs[s] = struct{}{}
    return s
}

// Close ends every subscription. Events already queued can still be read.
func (b *Local) Close() {
    b.mu.Lock()
    subs := b.subs
    b.subs = make(map[*Subscription]struct{})
    b.closed = true
    b.mu.Unlock()
    for s := range subs {
        s.queue.Close()
    }
}

func (b *Local) remove(s *Subscription) {
    b.mu.Lock()
    delete(b.subs, s)
    b.mu.Unlock()
}

// Subscription is one consumer's view of a Bus.
type Subscription struct {
    bus    *Local
    topics []string
    queue  *priocq.Deque[Event]
    once   sync.Once
}

func (s *Subscription) wants(topic string) bool {
    return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

// Next blocks until an event is available, ctx ends or the subscription
// closes.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
    ev, err := s.queue.Pop(ctx)
    if errors.Is(err, priocq.ErrClosed) { return nil, ErrClosed }
    return ev, err
}

// Len returns the number of queued events.
func (s *Subscription) Len() int { return s.queue.Len() }

func (s *Subscription) Close() {
    s.once.Do(func() {
        s.bus.remove(s)
        s.queue.Close()
    })
}
