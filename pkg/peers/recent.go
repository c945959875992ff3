// Package peers keeps the addresses of peers this node recently heard
// from and persists them so a restarted node can reconnect.
package peers

import (
    "slices"
    "sync"
)

// DefaultCapacity bounds a Recent built with a non-positive capacity.
const DefaultCapacity = 64

// Recent is a bounded, deduplicated list of addresses ordered from most
// to least recently seen.
type Recent struct {
    mu      sync.Mutex
    cap     int
    addrs   []string
    version uint64
}

func NewRecent(capacity int) *Recent {
    if capacity <= 0 { capacity = DefaultCapacity }
    return &Recent{cap: capacity, addrs: make([]string, 0, capacity)}
}

// Touch moves addr to the front, evicting the oldest entry when full. It
// reports whether the list changed.
func (r *Recent) Touch(addr string) bool {
    if addr == "" { return false }
    r.mu.Lock()
    defer r.mu.Unlock()
    if len(r.addrs) > 0 && r.addrs[0] == addr { return false }
    if i := slices.Index(r.addrs, addr); i >= 0 {
        r.addrs = slices.Delete(r.addrs, i, i+1)
    } else if len(r.addrs) == r.cap {
        r.addrs = r.addrs[:r.cap-1]
    }
    r.addrs = slices.Insert(r.addrs, 0, addr)
    r.version++
    return true
}

// Load replaces the list with addrs, keeping the first occurrence of each
// address and at most the capacity.
func (r *Recent) Load(addrs []string) {
    out := make([]string, 0, r.cap)
    for _, a := range addrs {
        if a == "" || slices.Contains(out, a) { continue }
        out = append(out, a)
        if len(out) == r.cap { break }
    }
    r.mu.Lock()
    r.addrs = out
    r.version++
    r.mu.Unlock()
}

// Snapshot returns the addresses, most recent first.
func (r *Recent) Snapshot() []string {
    r.mu.Lock()
    defer r.mu.Unlock()
    return slices.Clone(r.addrs)
}

func (r *Recent) Len() int {
    r.mu.Lock()
    defer r.mu.Unlock()
    return len(r.addrs)
}

// Version increases on every change.
func (r *Recent) Version() uint64 {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.version
}

func (r *Recent) snapshot() ([]string, uint64) {
    r.mu.Lock()
    defer r.mu.Unlock()
    return slices.Clone(r.addrs), r.version
}
