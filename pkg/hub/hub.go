// Package hub routes packets between the local node and its connections.
//
// Each connection runs one decode loop. Decoded packets are aged by one
// hop, checked against the processed set, delivered to the local inbox
// when addressed here and forwarded while their age stays below the TTL.
// A connection is written at most once per packet ID.
package hub

import (
    "context"
    "errors"
    "net"
    "strconv"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "go.uber.org/zap"

    "paradis/pkg/core/priocq"
    "paradis/pkg/ident"
    "paradis/pkg/memkv"
    "paradis/pkg/observability"
    "paradis/pkg/packet"
    "paradis/pkg/transport"
    "paradis/pkg/wire"
)

var (
    // ErrClosed is returned by Send and Receive after Close.
    ErrClosed = errors.New("hub: closed")
    // ErrNoCast is returned by Send for a nil packet or one without a cast.
    ErrNoCast = errors.New("hub: packet without cast")
)

// Message types the hub consumes itself.
const (
    TypeHello = "paradis.hello"
)

const (
    DefaultRetryAttempts = 3
    DefaultRetryDelay    = 200 * time.Millisecond
    DefaultSeenTTL       = 5 * time.Minute
)

// Options configures a Hub. Local and IDs are required.
type Options struct {
    Local ident.ID
    IDs   *ident.Generator
    // Registry is handed to packet readers and writers. Defaults to one
    // with the packet protocols installed.
    Registry *wire.Registry
    // Address is the hint stamped on hello packets.
    Address string

    RetryAttempts int
    RetryDelay    time.Duration
    // SeenTTL bounds how long packet IDs are remembered.
    SeenTTL     time.Duration
    SeenMaxKeys uint64
    // MaxPacketBytes bounds byte arrays and strings in decoded packets.
    MaxPacketBytes int

    Metrics prometheus.Registerer
    // OnInbound is called for every new packet decoded from a connection,
    // before routing.
    OnInbound func(remote net.Addr, p *packet.Packet)
}

// Hub owns the connection table, the dedup state and the inbox.
type Hub struct {
    opts    Options
    local   ident.ID
    links   *transport.Table
    seen    *memkv.Store
    inbox   *priocq.Deque[*packet.Packet]
    metrics *observability.HubMetrics
    hello   packet.Factory

    gmu    sync.RWMutex
    groups map[ident.ID]struct{}

    ctx    context.Context
    cancel context.CancelFunc
    wg     sync.WaitGroup
    once   sync.Once
}

// New returns a running hub with no connections.
func New(opts Options) *Hub {
    if opts.IDs == nil { opts.IDs = ident.NewGenerator(opts.Local.String()) }
    if opts.Registry == nil {
        opts.Registry = wire.NewRegistry()
        packet.Register(opts.Registry)
    }
    if opts.RetryAttempts == 0 { opts.RetryAttempts = DefaultRetryAttempts }
    if opts.RetryDelay == 0 { opts.RetryDelay = DefaultRetryDelay }
    if opts.SeenTTL == 0 { opts.SeenTTL = DefaultSeenTTL }
    if opts.MaxPacketBytes == 0 { opts.MaxPacketBytes = wire.DefaultMaxBytes }
    ctx, cancel := context.WithCancel(context.Background())
    seen := memkv.New(memkv.Options{MaxKeys: opts.SeenMaxKeys})
    return &Hub{
        opts:    opts,
        local:   opts.Local,
        links:   transport.NewTable(),
        seen:    seen,
        inbox:   priocq.NewDeque[*packet.Packet](),
        metrics: observability.NewHubMetrics(opts.Metrics, seen.Metrics),
        hello:   packet.NewFactory(opts.Local, opts.IDs, packet.WithTTL(1), packet.WithAddress(opts.Address)),
        groups:  make(map[ident.ID]struct{}),
        ctx:     ctx,
        cancel:  cancel,
    }
}

// Local returns the hub's own peer ID.
func (h *Hub) Local() ident.ID { return h.local }

func (h *Hub) closed() bool { return h.ctx.Err() != nil }

// Send injects a locally created packet: it is marked processed and held
// by this node, delivered locally if requested and routed while its TTL
// allows.
func (h *Hub) Send(p *packet.Packet) error {
    if p == nil || p.Cast == nil { return ErrNoCast }
    if h.closed() { return ErrClosed }
    h.metrics.Sent.Inc()
    h.markSeen(p.ID)
    p.Cast.AddReceived(h.local)
    if p.AlsoSendToSelf { h.deliver(p) }
    if p.CanPropagate() { h.route(p, nil, true) }
    return nil
}

// Receive blocks until a packet is delivered locally. Urgent packets are
// returned ahead of queued ones. It fails only when ctx ends or the hub
// closes.
func (h *Hub) Receive(ctx context.Context) (*packet.Packet, error) {
    p, err := h.inbox.Pop(ctx)
    if errors.Is(err, priocq.ErrClosed) { return nil, ErrClosed }
    return p, err
}

// Join adds group to the IDs this node accepts fixed-group packets for.
func (h *Hub) Join(group ident.ID) {
    h.gmu.Lock()
    h.groups[group] = struct{}{}
    h.gmu.Unlock()
}

func (h *Hub) Leave(group ident.ID) {
    h.gmu.Lock()
    delete(h.groups, group)
    h.gmu.Unlock()
}

// Groups returns the joined groups.
func (h *Hub) Groups() []ident.ID {
    h.gmu.RLock()
    out := make([]ident.ID, 0, len(h.groups))
    for g := range h.groups {
        out = append(out, g)
    }
    h.gmu.RUnlock()
    ident.Sort(out)
    return out
}

func (h *Hub) member(group ident.ID) bool {
    h.gmu.RLock()
    defer h.gmu.RUnlock()
    _, ok := h.groups[group]
    return ok
}

// Links returns a snapshot of the connection table.
func (h *Hub) Links() []transport.Link { return h.links.Snapshot() }

// Serve adds every connection l accepts until ctx ends, the hub closes or
// l fails.
func (h *Hub) Serve(ctx context.Context, l transport.Listener) error {
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()
    stop := context.AfterFunc(h.ctx, cancel)
    defer stop()
    for {
        c, err := l.Accept(ctx)
        if err != nil {
            if ctx.Err() != nil || transport.IsClosed(err) { return nil }
            return err
        }
        h.AddConn(c)
    }
}

// AddConn starts the decode loop for c and greets the peer. Adding a
// connection twice is a no-op; it reports whether c was new.
func (h *Hub) AddConn(c transport.Conn) bool {
    if h.closed() {
        _ = c.Close()
        return false
    }
    link, added := h.links.Add(c)
    if !added { return false }
    h.metrics.Links.Inc()
    zap.L().Debug("hub link added",
        zap.Uint64("link", link.ID),
        zap.String("kind", c.Kind().String()),
        zap.String("remote", c.RemoteAddr().String()))
    h.wg.Add(1)
    go h.serveConn(link)
    h.greet(link)
    return true
}

func (h *Hub) greet(link transport.Link) {
    p := h.hello.Direct(TypeHello, nil)
    h.markSeen(p.ID)
    h.markSent(link.ID, p.ID)
    h.write(link.Conn, p)
}

func (h *Hub) dropConn(c transport.Conn) {
    if h.links.Remove(c) {
        h.metrics.Links.Dec()
        h.metrics.Dropped.Inc()
    }
    _ = c.Close()
}

// Close stops every decode loop, closes all connections and fails pending
// Receive calls.
func (h *Hub) Close() error {
    h.once.Do(func() {
        h.cancel()
        h.links.CloseAll()
        h.inbox.Close()
        h.wg.Wait()
        h.seen.Close()
        h.metrics.Links.Set(0)
    })
    return nil
}

func (h *Hub) deliver(p *packet.Packet) {
    if h.inbox.Push(p, p.Urgent) { h.metrics.Delivered.Inc() }
}

func seenKey(id ident.ID) string { return "seen:" + id.String() }

func sentKey(link uint64, id ident.ID) string {
    return "sent:" + id.String() + ":" + strconv.FormatUint(link, 10)
}

// markSeen records id as processed and reports whether it was new.
func (h *Hub) markSeen(id ident.ID) bool { return h.mark(seenKey(id)) }

// markSent records that id went over link and reports whether it was new.
func (h *Hub) markSent(link uint64, id ident.ID) bool { return h.mark(sentKey(link, id)) }

// mark reports whether key was absent. When the store is full the key
// counts as new and only the TTL bounds further copies.
func (h *Hub) mark(key string) bool {
    if h.seen.SetNX(key, h.opts.SeenTTL) { return true }
    return !h.seen.Exists(key)
}
