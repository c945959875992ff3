package node

import (
    "bytes"
    "fmt"
    "sync"

    "paradis/pkg/ident"
    "paradis/pkg/packet"
    "paradis/pkg/wire"
)

// Group membership announcements are flooded with the group ID as the
// message.
const (
    TypeGroupJoin  = "paradis.group.join"
    TypeGroupLeave = "paradis.group.leave"
)

func (n *Node) announce(msgType string, group ident.ID) error {
    var buf bytes.Buffer
    w := wire.NewWriter(&buf, nil)
    ident.Encode(w, group)
    if err := w.Err(); err != nil { return err }
    p := n.factory.With(packet.WithLoopback(false)).Flood(msgType, buf.Bytes())
    return n.hub.Send(p)
}

// track records membership announcements from other peers.
func (n *Node) track(p *packet.Packet) {
    if p.MessageType != TypeGroupJoin && p.MessageType != TypeGroupLeave { return }
    group, err := decodeGroup(p.Message)
    if err != nil { return }
    if p.MessageType == TypeGroupJoin {
        n.groups.add(group, p.Cast.Sender())
    } else {
        n.groups.remove(group, p.Cast.Sender())
    }
}

func decodeGroup(b []byte) (ident.ID, error) {
    r := wire.NewReader(bytes.NewReader(b), nil)
    id := ident.Decode(r)
    if err := r.Err(); err != nil { return ident.Zero, err }
    if len(b) != 16 { return ident.Zero, fmt.Errorf("%w: group announcement of %d bytes", wire.ErrMalformed, len(b)) }
    return id, nil
}

type membership struct {
    mu     sync.RWMutex
    groups map[ident.ID]map[ident.ID]struct{}
}

func newMembership() *membership {
    return &membership{groups: make(map[ident.ID]map[ident.ID]struct{})}
}

func (m *membership) add(group, peer ident.ID) {
    m.mu.Lock()
    defer m.mu.Unlock()
    set, ok := m.groups[group]
    if !ok {
        set = make(map[ident.ID]struct{})
        m.groups[group] = set
    }
    set[peer] = struct{}{}
}

func (m *membership) remove(group, peer ident.ID) {
    m.mu.Lock()
    defer m.mu.Unlock()
    delete(m.groups[group], peer)
    if len(m.groups[group]) == 0 { delete(m.groups, group) }
}

func (m *membership) members(group ident.ID) []ident.ID {
    m.mu.RLock()
    out := make([]ident.ID, 0, len(m.groups[group]))
    for p := range m.groups[group] {
        out = append(out, p)
    }
    m.mu.RUnlock()
    ident.Sort(out)
    return out
}
