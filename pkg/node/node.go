// Package node is the facade applications use: it owns the UDP socket,
// the routing hub and the recency cache, and bridges them to an event
// bus.
package node

import (
    "context"
    "errors"
    "fmt"
    "net"
    "strconv"
    "strings"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/rs/xid"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "paradis/pkg/config"
    "paradis/pkg/events"
    "paradis/pkg/hub"
    "paradis/pkg/ident"
    "paradis/pkg/observability"
    "paradis/pkg/packet"
    "paradis/pkg/peers"
    "paradis/pkg/protocol/codec"
    "paradis/pkg/transport/tcp"
    "paradis/pkg/transport/udp"
)

// Option customizes a Node.
type Option func(*Node)

// WithBus replaces the node's private in-process bus.
func WithBus(b events.Bus) Option { return func(n *Node) { n.bus = b } }

// WithRegistry registers the node's metrics on reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(n *Node) { n.registry = reg } }

// Node is a running paradis peer.
type Node struct {
    cfg      *config.Config
    gen      *ident.Generator
    local    ident.ID
    factory  packet.Factory
    codecs   *codec.Registry
    bus      events.Bus
    registry *prometheus.Registry
    metrics  *observability.NodeMetrics

    udp    *udp.Server
    tcp    *tcp.Listener
    hub    *hub.Hub
    recent *peers.Recent
    saver  *peers.Saver
    groups *membership

    requests *events.Subscription

    ctx    context.Context
    cancel context.CancelFunc
    once   sync.Once
}

// New binds the UDP socket and builds the hub. Nothing is served until
// Run is called.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
    if cfg == nil { cfg = config.Default() }
    n := &Node{cfg: cfg, codecs: codec.NewRegistry(), groups: newMembership()}
    for _, o := range opts {
        o(n)
    }
    if n.bus == nil { n.bus = events.NewLocal() }
    n.requests = n.bus.Subscribe(events.TopicSend, events.TopicConnect, events.TopicJoin, events.TopicLeave)
    if n.registry == nil {
        n.registry = prometheus.NewRegistry()
        n.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    }

    name := cfg.Node.Name
    if name == "" { name = "node-" + xid.New().String() }
    n.gen = ident.NewGenerator(name)
    n.local = n.gen.New()
    n.factory = packet.NewFactory(n.local, n.gen,
        packet.WithTTL(cfg.Packet.TTL),
        packet.WithLoopback(cfg.Packet.Loopback),
        packet.WithAddress(cfg.Node.Advertise))

    ctx, cancel := context.WithCancel(context.Background())
    n.ctx, n.cancel = ctx, cancel
    srv, err := udp.Listen(ctx, cfg.Node.Listen, udp.WithInputBuffer(cfg.Node.InputBufferBytes))
    if err != nil {
        cancel()
        n.requests.Close()
        return nil, fmt.Errorf("node: listen %s: %w", cfg.Node.Listen, err)
    }
    n.udp = srv
    if cfg.Node.TCPListen != "" {
        n.tcp, err = tcp.Listen(ctx, cfg.Node.TCPListen)
        if err != nil {
            cancel()
            n.requests.Close()
            _ = srv.Close()
            return nil, fmt.Errorf("node: listen tcp %s: %w", cfg.Node.TCPListen, err)
        }
    }
    n.metrics = observability.NewNodeMetrics(n.registry, func() float64 { return float64(srv.Dropped()) })

    n.hub = hub.New(hub.Options{
        Local:          n.local,
        IDs:            n.gen,
        Address:        cfg.Node.Advertise,
        RetryAttempts:  cfg.Hub.RetryAttempts,
        RetryDelay:     cfg.Hub.RetryDelay(),
        SeenTTL:        cfg.Hub.SeenTTL(),
        SeenMaxKeys:    uint64(cfg.Hub.SeenMaxKeys),
        MaxPacketBytes: cfg.Hub.MaxPacketBytes,
        Metrics:        n.registry,
        OnInbound:      n.onInbound,
    })

    n.recent = peers.NewRecent(cfg.Recent.Capacity)
    path := cfg.Recent.Path(cfg.Node.DataDir)
    if path != "" {
        addrs, err := peers.Load(path)
        if err != nil {
            zap.L().Warn("ignoring unreadable recent peers file", zap.String("path", path), zap.Error(err))
        }
        n.recent.Load(addrs)
    }
    n.saver = peers.NewSaver(n.recent, peers.SaverOptions{
        Path:         path,
        Quiet:        cfg.Recent.Quiet(),
        MaxDeferrals: cfg.Recent.MaxDeferrals,
        OnSave:       func(int) { n.metrics.Saves.Inc() },
    })

    zap.L().Info("node created",
        zap.String("principal", name),
        zap.Stringer("id", n.local),
        zap.String("listen", srv.Addr().String()))
    return n, nil
}

func (n *Node) ID() ident.ID { return n.local }

// Addr returns the bound UDP address.
func (n *Node) Addr() net.Addr { return n.udp.Addr() }

// TCPAddr returns the bound TCP address, or nil when TCP is disabled.
func (n *Node) TCPAddr() net.Addr {
    if n.tcp == nil { return nil }
    return n.tcp.Addr()
}

// Factory returns the packet factory configured for this node.
func (n *Node) Factory() packet.Factory { return n.factory }

// Codecs returns the body codec registry for typed payloads.
func (n *Node) Codecs() *codec.Registry { return n.codecs }

func (n *Node) Bus() events.Bus { return n.bus }

func (n *Node) Hub() *hub.Hub { return n.hub }

// Recent returns the addresses of peers heard from, most recent first.
func (n *Node) Recent() []string { return n.recent.Snapshot() }

// Run serves connections, delivers received packets to the bus and
// handles bus requests until ctx ends or Close is called. Requests
// published after New are queued until Run picks them up. The node is
// closed on return.
func (n *Node) Run(ctx context.Context) error {
    defer n.Close()
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()
    stop := context.AfterFunc(n.ctx, cancel)
    defer stop()
    g, ctx := errgroup.WithContext(ctx)

    g.Go(func() error { return n.hub.Serve(ctx, n.udp) })
    if n.tcp != nil {
        g.Go(func() error { return n.hub.Serve(ctx, n.tcp) })
    }
    g.Go(func() error { return n.pump(ctx) })
    g.Go(func() error { return n.serveRequests(ctx, n.requests) })
    if n.cfg.Recent.Path(n.cfg.Node.DataDir) != "" {
        g.Go(func() error { return n.saver.Run(ctx) })
    }
    if n.cfg.Admin.Listen != "" {
        g.Go(func() error { return n.serveAdmin(ctx, n.cfg.Admin.Listen) })
    }
    n.bootstrap(ctx)
    g.Go(func() error {
        <-ctx.Done()
        return n.Close()
    })
    err := g.Wait()
    if errors.Is(err, context.Canceled) { return nil }
    return err
}

// bootstrap connects to the configured peers and to every remembered one.
func (n *Node) bootstrap(ctx context.Context) {
    targets := append([]string(nil), n.cfg.Node.Bootstrap...)
    targets = append(targets, n.recent.Snapshot()...)
    seen := make(map[string]struct{}, len(targets))
    for _, t := range targets {
        if _, ok := seen[t]; ok { continue }
        seen[t] = struct{}{}
        if addr, ok := strings.CutPrefix(t, config.TCPScheme); ok {
            if err := n.ConnectTCP(ctx, addr); err != nil {
                zap.L().Warn("bootstrap connect failed", zap.String("addr", t), zap.Error(err))
            }
            continue
        }
        host, portStr, err := net.SplitHostPort(t)
        if err != nil {
            zap.L().Warn("bad bootstrap address", zap.String("addr", t), zap.Error(err))
            continue
        }
        port, err := strconv.Atoi(portStr)
        if err != nil {
            zap.L().Warn("bad bootstrap port", zap.String("addr", t), zap.Error(err))
            continue
        }
        if err := n.Connect(host, port); err != nil {
            zap.L().Warn("bootstrap connect failed", zap.String("addr", t), zap.Error(err))
        }
    }
}

// Connect opens a virtual socket to host:port and hands it to the hub.
func (n *Node) Connect(host string, port int) error {
    c, err := n.udp.Connect(host, port)
    if err != nil { return fmt.Errorf("node: connect %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err) }
    n.hub.AddConn(c)
    return nil
}

// ConnectTCP dials address over TCP and hands the stream to the hub.
func (n *Node) ConnectTCP(ctx context.Context, address string) error {
    c, err := tcp.Dial(ctx, address)
    if err != nil { return fmt.Errorf("node: connect tcp %s: %w", address, err) }
    n.hub.AddConn(c)
    return nil
}

// Send hands p to the hub.
func (n *Node) Send(p *packet.Packet) error { return n.hub.Send(p) }

// Join accepts fixed-group packets for group and announces it.
func (n *Node) Join(group ident.ID) error {
    n.hub.Join(group)
    return n.announce(TypeGroupJoin, group)
}

// Leave stops accepting fixed-group packets for group and announces it.
func (n *Node) Leave(group ident.ID) error {
    n.hub.Leave(group)
    return n.announce(TypeGroupLeave, group)
}

// Members returns the peers known to have joined group, including this
// node.
func (n *Node) Members(group ident.ID) []ident.ID {
    out := n.groups.members(group)
    for _, g := range n.hub.Groups() {
        if g == group {
            out = append(out, n.local)
            ident.Sort(out)
            break
        }
    }
    return out
}

// Close stops every loop and releases the socket. It is safe to call more
// than once.
func (n *Node) Close() error {
    var err error
    n.once.Do(func() {
        n.cancel()
        n.requests.Close()
        err = n.hub.Close()
        if cerr := n.udp.Close(); err == nil { err = cerr }
        if n.tcp != nil {
            if cerr := n.tcp.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) { err = cerr }
        }
    })
    return err
}

func (n *Node) onInbound(remote net.Addr, _ *packet.Packet) {
    if _, ok := remote.(*net.UDPAddr); !ok { return }
    if n.recent.Touch(remote.String()) { n.saver.Notify() }
}

// pump publishes every delivered packet on the bus.
func (n *Node) pump(ctx context.Context) error {
    for {
        p, err := n.hub.Receive(ctx)
        if err != nil {
            if errors.Is(err, hub.ErrClosed) || ctx.Err() != nil { return nil }
            return err
        }
        n.track(p)
        n.bus.Publish(events.PacketReceived{Packet: p})
        n.metrics.Published.Inc()
    }
}

func (n *Node) serveRequests(ctx context.Context, sub *events.Subscription) error {
    for {
        ev, err := sub.Next(ctx)
        if err != nil { return nil }
        if err := n.handle(ev); err != nil {
            n.metrics.SendErrors.Inc()
            failed := events.SendFailed{Err: err}
            if r, ok := ev.(events.SendRequest); ok { failed.Packet = r.Packet }
            zap.L().Warn("node request failed", zap.String("topic", ev.Topic()), zap.Error(err))
            n.bus.Publish(failed)
        }
    }
}

func (n *Node) handle(ev events.Event) error {
    switch r := ev.(type) {
    case events.SendRequest:
        if r.Packet == nil { return errors.New("node: send request without packet") }
        return n.Send(r.Packet)
    case events.ConnectRequest:
        return n.Connect(r.Host, r.Port)
    case events.JoinRequest:
        return n.Join(r.Group)
    case events.LeaveRequest:
        return n.Leave(r.Group)
    default:
        return fmt.Errorf("node: unexpected request %T", ev)
    }
}
