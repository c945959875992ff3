package memkv

import (
    "container/heap"
    "sync"
    "sync/atomic"
    "time"

    "github.com/cespare/xxhash/v2"
)

type Options struct {
    Shards  int    // number of shards, default 64
    MaxKeys uint64 // 0 = unbounded
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 64 }
    return o
}

// Store is safe for concurrent use. Close stops the expiry goroutine.
type Store struct {
    opts   Options
    shards []shard
    expq   expQueue
    wake   chan struct{}
    done   chan struct{}
    once   sync.Once
    wg     sync.WaitGroup
    nowFn  func() time.Time

    keys    atomic.Uint64
    expired atomic.Uint64
    refused atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]entry
}

type entry struct {
    expireAt int64 // unix nanos, 0 = never
}

func (e entry) expiredAt(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store { return newStore(opts, time.Now) }

func newStore(opts Options, now func() time.Time) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:   opts,
        shards: make([]shard, opts.Shards),
        wake:   make(chan struct{}, 1),
        done:   make(chan struct{}),
        nowFn:  now,
    }
    for i := range s.shards {
        s.shards[i].m = make(map[string]entry)
    }
    s.wg.Add(1)
    go s.expirer()
    return s
}

// Close stops background expiry. The store stays readable.
func (s *Store) Close() {
    s.once.Do(func() { close(s.done) })
    s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
    return &s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *Store) deadline(ttl time.Duration) int64 {
    if ttl <= 0 { return 0 }
    return s.nowFn().Add(ttl).UnixNano()
}

// SetNX stores key only if it is absent or expired and reports whether it
// did. Concurrent callers racing on one key see exactly one true. It also
// reports false when the key is new and the store is full.
func (s *Store) SetNX(key string, ttl time.Duration) bool {
    exp := s.deadline(ttl)
    now := s.nowFn().UnixNano()
    sh := s.shardFor(key)
    sh.mu.Lock()
    if old, ok := sh.m[key]; ok {
        if !old.expiredAt(now) {
            sh.mu.Unlock()
            return false
        }
        delete(sh.m, key)
        s.keys.Add(^uint64(0))
        s.expired.Add(1)
    }
    if !s.reserve() {
        sh.mu.Unlock()
        return false
    }
    sh.m[key] = entry{expireAt: exp}
    sh.mu.Unlock()
    if exp != 0 { s.schedule(key, exp) }
    return true
}

func (s *Store) reserve() bool {
    for {
        cur := s.keys.Load()
        if s.opts.MaxKeys != 0 && cur >= s.opts.MaxKeys {
            s.refused.Add(1)
            return false
        }
        if s.keys.CompareAndSwap(cur, cur+1) { return true }
    }
}

// Exists reports whether key is stored and not expired.
func (s *Store) Exists(key string) bool {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if !ok { return false }
    if e.expiredAt(s.nowFn().UnixNano()) {
        s.removeExpired(sh, key)
        return false
    }
    return true
}

func (s *Store) removeExpired(sh *shard, key string) {
    now := s.nowFn().UnixNano()
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok && e.expiredAt(now) {
        delete(sh.m, key)
        s.keys.Add(^uint64(0))
        s.expired.Add(1)
    }
    sh.mu.Unlock()
}

// Stats is a point-in-time view of the store counters. Keys includes
// expired keys not yet collected.
type Stats struct {
    Keys    uint64
    Expired uint64
    Refused uint64
}

func (s *Store) Metrics() Stats {
    return Stats{
        Keys:    s.keys.Load(),
        Expired: s.expired.Load(),
        Refused: s.refused.Load(),
    }
}

type expItem struct {
    when int64
    key  string
}

type expQueue struct {
    mu    sync.Mutex
    items []expItem
}

func (q *expQueue) Len() int           { return len(q.items) }
func (q *expQueue) Less(i, j int) bool { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)         { q.items = append(q.items, x.(expItem)) }
func (q *expQueue) Pop() any {
    n := len(q.items)
    it := q.items[n-1]
    q.items = q.items[:n-1]
    return it
}

func (s *Store) schedule(key string, when int64) {
    s.expq.mu.Lock()
    heap.Push(&s.expq, expItem{when: when, key: key})
    first := s.expq.items[0].when == when
    s.expq.mu.Unlock()
    if first {
        select {
        case s.wake <- struct{}{}:
        default:
        }
    }
}

func (s *Store) expirer() {
    defer s.wg.Done()
    timer := time.NewTimer(time.Hour)
    defer timer.Stop()
    for {
        wait := time.Hour
        s.expq.mu.Lock()
        now := s.nowFn().UnixNano()
        var due []string
        for s.expq.Len() > 0 && s.expq.items[0].when <= now {
            due = append(due, heap.Pop(&s.expq).(expItem).key)
        }
        if s.expq.Len() > 0 { wait = time.Duration(s.expq.items[0].when - now) }
        s.expq.mu.Unlock()

        for _, key := range due {
            s.removeExpired(s.shardFor(key), key)
        }

        if !timer.Stop() {
            select {
            case <-timer.C:
            default:
            }
        }
        timer.Reset(wait)
        select {
        case <-s.done:
            return
        case <-s.wake:
        case <-timer.C:
        }
    }
}
