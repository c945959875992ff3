package cast

import (
    "slices"
    "sync"

    "paradis/pkg/ident"
)

// ReceivedSet is a sorted set of peer IDs. The zero value is empty and
// ready to use; all methods are safe for concurrent use.
type ReceivedSet struct {
    mu  sync.Mutex
    ids []ident.ID
}

// Add inserts id and reports whether it was absent.
func (s *ReceivedSet) Add(id ident.ID) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    i, ok := search(s.ids, id)
    if ok { return false }
    s.ids = slices.Insert(s.ids, i, id)
    return true
}

func (s *ReceivedSet) Has(id ident.ID) bool {
    s.mu.Lock()
    _, ok := search(s.ids, id)
    s.mu.Unlock()
    return ok
}

func (s *ReceivedSet) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.ids)
}

// Snapshot returns a sorted copy.
func (s *ReceivedSet) Snapshot() []ident.ID {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]ident.ID(nil), s.ids...)
}

func (s *ReceivedSet) reset(ids []ident.ID) {
    s.mu.Lock()
    s.ids = sortedUnique(ids)
    s.mu.Unlock()
}

func search(ids []ident.ID, id ident.ID) (int, bool) {
    return slices.BinarySearchFunc(ids, id, ident.ID.Compare)
}

func sortedUnique(ids []ident.ID) []ident.ID {
    out := append([]ident.ID(nil), ids...)
    ident.Sort(out)
    return slices.Compact(out)
}
