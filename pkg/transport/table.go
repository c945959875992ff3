package transport

import (
    "sort"
    "sync"
    "time"

    "paradis/pkg/ident"
)

// Link is a snapshot of one table entry.
type Link struct {
    ID     uint64
    Conn   Conn
    Peer   ident.ID
    Bound  bool
    Since  time.Time
}

// Table tracks live connections and the peer bound to each. A peer is
// bound to at most one connection; binding it again moves it.
type Table struct {
    mu     sync.RWMutex
    seq    uint64
    byConn map[Conn]*Link
    byPeer map[ident.ID]*Link
}

func NewTable() *Table {
    return &Table{byConn: make(map[Conn]*Link), byPeer: make(map[ident.ID]*Link)}
}

// Add registers c. It returns the entry and whether c was new.
func (t *Table) Add(c Conn) (Link, bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    if l := t.byConn[c]; l != nil { return *l, false }
    t.seq++
    l := &Link{ID: t.seq, Conn: c, Since: time.Now()}
    t.byConn[c] = l
    return *l, true
}

// Remove forgets c and its binding. It reports whether c was present.
func (t *Table) Remove(c Conn) bool {
    t.mu.Lock()
    defer t.mu.Unlock()
    l := t.byConn[c]
    if l == nil { return false }
    delete(t.byConn, c)
    if l.Bound && t.byPeer[l.Peer] == l { delete(t.byPeer, l.Peer) }
    return true
}

// Bind associates peer with c, replacing c's previous peer and moving the
// peer off any other connection. It reports whether anything changed.
func (t *Table) Bind(c Conn, peer ident.ID) bool {
    t.mu.Lock()
    defer t.mu.Unlock()
    l := t.byConn[c]
    if l == nil { return false }
    if l.Bound && l.Peer == peer && t.byPeer[peer] == l { return false }
    if l.Bound && t.byPeer[l.Peer] == l { delete(t.byPeer, l.Peer) }
    if prev := t.byPeer[peer]; prev != nil && prev != l { prev.Bound, prev.Peer = false, ident.Zero }
    l.Peer, l.Bound = peer, true
    t.byPeer[peer] = l
    return true
}

// Get returns the entry for c.
func (t *Table) Get(c Conn) (Link, bool) {
    t.mu.RLock()
    defer t.mu.RUnlock()
    l := t.byConn[c]
    if l == nil { return Link{}, false }
    return *l, true
}

// Lookup returns the connection bound to peer.
func (t *Table) Lookup(peer ident.ID) (Conn, bool) {
    t.mu.RLock()
    defer t.mu.RUnlock()
    l := t.byPeer[peer]
    if l == nil { return nil, false }
    return l.Conn, true
}

// Snapshot returns every entry ordered by ID.
func (t *Table) Snapshot() []Link {
    t.mu.RLock()
    out := make([]Link, 0, len(t.byConn))
    for _, l := range t.byConn {
        out = append(out, *l)
    }
    t.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

func (t *Table) Len() int {
    t.mu.RLock()
    defer t.mu.RUnlock()
    return len(t.byConn)
}

// CloseAll closes and forgets every connection.
func (t *Table) CloseAll() {
    t.mu.Lock()
    conns := make([]Conn, 0, len(t.byConn))
    for c := range t.byConn {
        conns = append(conns, c)
    }
    t.byConn = make(map[Conn]*Link)
    t.byPeer = make(map[ident.ID]*Link)
    t.mu.Unlock()
    for _, c := range conns {
        _ = c.Close()
    }
}
