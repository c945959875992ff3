package packet

import (
    "paradis/pkg/cast"
    "paradis/pkg/ident"
)

// DefaultTTL bounds hops for packets from a factory built without WithTTL.
const DefaultTTL int16 = 8

// Factory creates packets with a fixed sender and per-factory defaults.
// It is a value: With returns a modified copy and leaves f untouched.
type Factory struct {
    sender   ident.ID
    gen      *ident.Generator
    address  string
    loopback bool
    urgent   bool
    ttl      int16
}

// Option overrides one factory default.
type Option func(*Factory)

// WithLoopback sets whether new packets are also delivered locally.
func WithLoopback(v bool) Option { return func(f *Factory) { f.loopback = v } }

func WithUrgent(v bool) Option { return func(f *Factory) { f.urgent = v } }

func WithTTL(ttl int16) Option { return func(f *Factory) { f.ttl = ttl } }

// WithAddress sets the reachable address hint stamped on every cast.
func WithAddress(addr string) Option { return func(f *Factory) { f.address = addr } }

// NewFactory returns a factory sending as sender, drawing IDs from gen.
func NewFactory(sender ident.ID, gen *ident.Generator, opts ...Option) Factory {
    f := Factory{sender: sender, gen: gen, ttl: DefaultTTL}
    return f.With(opts...)
}

// With returns a copy of f with opts applied.
func (f Factory) With(opts ...Option) Factory {
    for _, o := range opts {
        o(&f)
    }
    return f
}

func (f Factory) Sender() ident.ID { return f.sender }
func (f Factory) TTL() int16       { return f.ttl }
func (f Factory) Loopback() bool   { return f.loopback }
func (f Factory) Urgent() bool     { return f.urgent }
func (f Factory) Address() string  { return f.address }

func (f Factory) build(c cast.Cast, msgType string, msg []byte) *Packet {
    return &Packet{
        ID:             f.gen.New(),
        AlsoSendToSelf: f.loopback,
        Urgent:         f.urgent,
        TimeToLive:     f.ttl,
        Cast:           c,
        Message:        msg,
        MessageType:    msgType,
    }
}

// Direct creates a packet for the immediate neighbours.
func (f Factory) Direct(msgType string, msg []byte) *Packet {
    return f.build(cast.NewDirect(f.sender, f.address), msgType, msg)
}

// To creates a packet for one target.
func (f Factory) To(target ident.ID, msgType string, msg []byte) *Packet {
    return f.build(cast.NewSingleReceiver(f.sender, target, f.address), msgType, msg)
}

// Group creates a packet for a fixed set of receivers.
func (f Factory) Group(receivers []ident.ID, msgType string, msg []byte) *Packet {
    return f.build(cast.NewFixedGroup(f.sender, receivers, f.address), msgType, msg)
}

// Flood creates a packet for every reachable peer.
func (f Factory) Flood(msgType string, msg []byte) *Packet {
    return f.build(cast.NewFlood(f.sender, f.address), msgType, msg)
}
