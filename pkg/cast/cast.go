// Package cast defines the addressing policies a packet can carry.
//
// A Cast is one of four kinds: Direct, SingleReceiver, FixedGroup and
// Flood. The set is closed. Code that branches on the kind goes through
// Match with a Matcher, so adding a kind breaks every such site at compile
// time instead of silently falling through.
package cast

import (
    "fmt"

    "paradis/pkg/ident"
)

// Kind is the two-bit cast tag carried in the packet flags.
type Kind uint8

const (
    KindDirect Kind = iota
    KindSingleReceiver
    KindFixedGroup
    KindFlood
)

func (k Kind) String() string {
    switch k {
    case KindDirect:
        return "direct"
    case KindSingleReceiver:
        return "single"
    case KindFixedGroup:
        return "group"
    case KindFlood:
        return "flood"
    default:
        return fmt.Sprintf("kind(%d)", uint8(k))
    }
}

// Cast is implemented only by the four types in this package.
type Cast interface {
    Kind() Kind
    Sender() ident.ID
    // Address is the sender's reachable address hint, empty when unknown.
    Address() string
    // AddReceived records id as holding a copy. No-op for single-hop kinds.
    AddReceived(id ident.ID)
    // HasReceived reports whether id is known to hold a copy.
    HasReceived(id ident.ID) bool

    sealed()
}

// Matcher has one method per kind.
type Matcher[R any] interface {
    Direct(c *Direct) R
    SingleReceiver(c *SingleReceiver) R
    FixedGroup(c *FixedGroup) R
    Flood(c *Flood) R
}

// Match calls the Matcher method for c's kind.
func Match[R any](c Cast, m Matcher[R]) R {
    switch c := c.(type) {
    case *Direct:
        return m.Direct(c)
    case *SingleReceiver:
        return m.SingleReceiver(c)
    case *FixedGroup:
        return m.FixedGroup(c)
    case *Flood:
        return m.Flood(c)
    default:
        panic(fmt.Sprintf("cast: unknown cast type %T", c))
    }
}

type header struct {
    sender  ident.ID
    address string
}

func (h *header) Sender() ident.ID { return h.sender }
func (h *header) Address() string  { return h.address }
func (h *header) sealed()          {}

// Direct is delivered to the neighbours it is written to and goes no further.
type Direct struct{ header }

func NewDirect(sender ident.ID, address string) *Direct {
    return &Direct{header{sender: sender, address: address}}
}

func (*Direct) Kind() Kind                  { return KindDirect }
func (*Direct) AddReceived(ident.ID)        {}
func (*Direct) HasReceived(ident.ID) bool   { return false }

// SingleReceiver addresses one target. Only the target keeps it.
type SingleReceiver struct {
    header
    target ident.ID
}

func NewSingleReceiver(sender, target ident.ID, address string) *SingleReceiver {
    return &SingleReceiver{header: header{sender: sender, address: address}, target: target}
}

func (*SingleReceiver) Kind() Kind                { return KindSingleReceiver }
func (c *SingleReceiver) Target() ident.ID        { return c.target }
func (*SingleReceiver) AddReceived(ident.ID)      {}
func (*SingleReceiver) HasReceived(ident.ID) bool { return false }

// FixedGroup addresses an explicit sorted set of receivers and tracks
// which peers already hold a copy.
type FixedGroup struct {
    header
    receivers []ident.ID
    received  ReceivedSet
}

// NewFixedGroup copies, sorts and deduplicates receivers. The received
// set starts with the sender.
func NewFixedGroup(sender ident.ID, receivers []ident.ID, address string) *FixedGroup {
    c := &FixedGroup{header: header{sender: sender, address: address}, receivers: sortedUnique(receivers)}
    c.received.Add(sender)
    return c
}

func (*FixedGroup) Kind() Kind                     { return KindFixedGroup }
func (c *FixedGroup) AddReceived(id ident.ID)      { c.received.Add(id) }
func (c *FixedGroup) HasReceived(id ident.ID) bool { return c.received.Has(id) }

// Receivers returns a copy of the sorted receiver list.
func (c *FixedGroup) Receivers() []ident.ID { return append([]ident.ID(nil), c.receivers...) }

// Received returns a sorted snapshot of the peers holding a copy.
func (c *FixedGroup) Received() []ident.ID { return c.received.Snapshot() }

// IsReceiver reports whether id is one of the receivers.
func (c *FixedGroup) IsReceiver(id ident.ID) bool {
    _, ok := search(c.receivers, id)
    return ok
}

// Unreached counts receivers other than except that have not received.
func (c *FixedGroup) Unreached(except ident.ID) int {
    n := 0
    for _, r := range c.receivers {
        if r != except && !c.received.Has(r) { n++ }
    }
    return n
}

// Flood targets every reachable peer and tracks which ones hold a copy.
type Flood struct {
    header
    received ReceivedSet
}

func NewFlood(sender ident.ID, address string) *Flood {
    c := &Flood{header: header{sender: sender, address: address}}
    c.received.Add(sender)
    return c
}

func (*Flood) Kind() Kind                     { return KindFlood }
func (c *Flood) AddReceived(id ident.ID)      { c.received.Add(id) }
func (c *Flood) HasReceived(id ident.ID) bool { return c.received.Has(id) }
func (c *Flood) Received() []ident.ID         { return c.received.Snapshot() }
