package hub

import (
    "bufio"
    "errors"
    "time"

    "go.uber.org/zap"

    "paradis/pkg/cast"
    "paradis/pkg/packet"
    "paradis/pkg/transport"
    "paradis/pkg/wire"
)

// serveConn decodes packets from one connection until it closes, sends
// garbage or keeps failing.
func (h *Hub) serveConn(link transport.Link) {
    defer h.wg.Done()
    defer h.dropConn(link.Conn)
    log := zap.L().With(zap.Uint64("link", link.ID), zap.String("remote", link.Conn.RemoteAddr().String()))

    br := bufio.NewReaderSize(link.Conn, 64*1024)
    failures := 0
    for {
        r := wire.NewReader(br, h.opts.Registry)
        r.MaxBytes = h.opts.MaxPacketBytes
        p := packet.Decode(r)
        err := r.Err()
        switch {
        case err == nil:
            failures = 0
            h.handle(link, p)
            continue
        case h.closed() || transport.IsClosed(err):
            log.Debug("hub link closed", zap.Error(err))
            return
        case errors.Is(err, wire.ErrMalformed):
            h.metrics.Malformed.Inc()
            log.Warn("hub dropping link after malformed packet", zap.Error(err))
            return
        }
        failures++
        if failures > h.opts.RetryAttempts {
            log.Warn("hub dropping link after repeated errors", zap.Error(err), zap.Int("attempts", failures))
            return
        }
        log.Debug("hub read failed, retrying", zap.Error(err), zap.Int("attempt", failures))
        select {
        case <-h.ctx.Done():
            return
        case <-time.After(h.opts.RetryDelay):
        }
    }
}

// handle processes one decoded packet.
func (h *Hub) handle(link transport.Link, p *packet.Packet) {
    p.Age++
    h.metrics.Received.Inc()
    // Never echo a packet back over the link it came from.
    h.markSent(link.ID, p.ID)
    if !h.markSeen(p.ID) {
        h.metrics.Duplicates.Inc()
        return
    }
    if p.Age == 1 {
        // Only the originator's direct neighbours see age 1.
        h.links.Bind(link.Conn, p.Cast.Sender())
    }
    if p.MessageType == TypeHello && p.Cast.Kind() == cast.KindDirect { return }
    if h.opts.OnInbound != nil { h.opts.OnInbound(link.Conn.RemoteAddr(), p) }

    v := cast.Match[verdict](p.Cast, classifier{h})
    p.Cast.AddReceived(h.local)
    if v.mine { h.deliver(p) }
    if v.route && p.CanPropagate() { h.route(p, link.Conn, false) }
}

type verdict struct{ mine, route bool }

// classifier decides local delivery and further routing for a packet
// that arrived from the network.
type classifier struct{ h *Hub }

func (classifier) Direct(*cast.Direct) verdict { return verdict{mine: true} }

func (c classifier) SingleReceiver(s *cast.SingleReceiver) verdict {
    mine := s.Target() == c.h.local
    return verdict{mine: mine, route: !mine}
}

func (c classifier) FixedGroup(g *cast.FixedGroup) verdict {
    mine := g.IsReceiver(c.h.local)
    if !mine {
        for _, grp := range c.h.Groups() {
            if g.IsReceiver(grp) {
                mine = true
                break
            }
        }
    }
    return verdict{mine: mine, route: g.Unreached(c.h.local) > 0}
}

func (classifier) Flood(*cast.Flood) verdict { return verdict{mine: true, route: true} }
