package hub

import (
    "bytes"

    "go.uber.org/zap"

    "paradis/pkg/cast"
    "paradis/pkg/packet"
    "paradis/pkg/transport"
    "paradis/pkg/wire"
)

// route forwards p. from is the connection p arrived on, nil for local
// packets. Single-hop kinds are only written at their origin.
func (h *Hub) route(p *packet.Packet, from transport.Conn, origin bool) {
    targets := cast.Match[[]transport.Conn](p.Cast, &router{h: h, p: p, from: from, origin: origin})
    if len(targets) == 0 { return }
    // Every target is marked before encoding so the copies carry the
    // complete received set.
    b, err := h.encode(p)
    if err != nil {
        zap.L().Error("hub cannot encode packet", zap.Stringer("packet", p), zap.Error(err))
        return
    }
    for _, c := range targets {
        h.writeBytes(c, b)
    }
}

// router picks the connections a packet goes to and claims them in the
// per-connection sent set.
type router struct {
    h      *Hub
    p      *packet.Packet
    from   transport.Conn
    origin bool
}

// claim marks link as used for the packet and its peer as holding a copy.
func (r *router) claim(l transport.Link) bool {
    if !r.h.markSent(l.ID, r.p.ID) { return false }
    if l.Bound { r.p.Cast.AddReceived(l.Peer) }
    return true
}

// all claims every link whose peer is not known to hold a copy.
func (r *router) all() []transport.Conn {
    var out []transport.Conn
    for _, l := range r.h.links.Snapshot() {
        if l.Conn == r.from { continue }
        if l.Bound && r.p.Cast.HasReceived(l.Peer) { continue }
        if r.claim(l) { out = append(out, l.Conn) }
    }
    return out
}

func (r *router) Direct(*cast.Direct) []transport.Conn {
    if !r.origin { return nil }
    return r.all()
}

func (r *router) SingleReceiver(s *cast.SingleReceiver) []transport.Conn {
    if !r.origin { return nil }
    if c, ok := r.h.links.Lookup(s.Target()); ok {
        if l, ok := r.h.links.Get(c); ok && r.claim(l) { return []transport.Conn{c} }
        return nil
    }
    return r.all()
}

func (r *router) FixedGroup(g *cast.FixedGroup) []transport.Conn {
    var out []transport.Conn
    for _, id := range g.Receivers() {
        if id == r.h.local || g.HasReceived(id) { continue }
        c, ok := r.h.links.Lookup(id)
        if !ok || c == r.from { continue }
        if l, ok := r.h.links.Get(c); ok && r.claim(l) { out = append(out, c) }
    }
    if g.Unreached(r.h.local) > 0 { out = append(out, r.all()...) }
    return out
}

func (r *router) Flood(*cast.Flood) []transport.Conn { return r.all() }

func (h *Hub) encode(p *packet.Packet) ([]byte, error) {
    var buf bytes.Buffer
    w := wire.NewWriter(&buf, h.opts.Registry)
    packet.Encode(w, p)
    if err := w.Err(); err != nil { return nil, err }
    return buf.Bytes(), nil
}

func (h *Hub) write(c transport.Conn, p *packet.Packet) {
    b, err := h.encode(p)
    if err != nil {
        zap.L().Error("hub cannot encode packet", zap.Stringer("packet", p), zap.Error(err))
        return
    }
    h.writeBytes(c, b)
}

// writeBytes sends one encoded packet. A closed connection is dropped;
// other write errors are left to the connection's decode loop.
func (h *Hub) writeBytes(c transport.Conn, b []byte) {
    if _, err := c.Write(b); err != nil {
        if transport.IsClosed(err) {
            h.dropConn(c)
            return
        }
        zap.L().Debug("hub write failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
        return
    }
    h.metrics.Routed.Inc()
}
