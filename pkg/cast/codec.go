package cast

import (
    "fmt"

    "paradis/pkg/ident"
    "paradis/pkg/wire"
)

// Encode writes the cast payload: sender, address hint, then the
// kind-specific fields. The kind itself travels in the packet flags.
func Encode(w *wire.Writer, c Cast) { Match[struct{}](c, encoder{w}) }

type encoder struct{ w *wire.Writer }

func (e encoder) header(c Cast) {
    ident.Encode(e.w, c.Sender())
    e.w.WriteBool(c.Address() != "")
    if c.Address() != "" { e.w.WriteString(c.Address()) }
}

func (e encoder) Direct(c *Direct) struct{} {
    e.header(c)
    return struct{}{}
}

func (e encoder) SingleReceiver(c *SingleReceiver) struct{} {
    e.header(c)
    ident.Encode(e.w, c.target)
    return struct{}{}
}

func (e encoder) FixedGroup(c *FixedGroup) struct{} {
    e.header(c)
    writeIDs(e.w, c.receivers)
    writeIDs(e.w, c.received.Snapshot())
    return struct{}{}
}

func (e encoder) Flood(c *Flood) struct{} {
    e.header(c)
    writeIDs(e.w, c.received.Snapshot())
    return struct{}{}
}

// Decode reads a cast payload of the given kind.
func Decode(r *wire.Reader, k Kind) Cast {
    sender := ident.Decode(r)
    var address string
    if r.ReadBool() { address = r.ReadString() }
    if r.Err() != nil { return nil }
    switch k {
    case KindDirect:
        return NewDirect(sender, address)
    case KindSingleReceiver:
        target := ident.Decode(r)
        return NewSingleReceiver(sender, target, address)
    case KindFixedGroup:
        c := NewFixedGroup(sender, readIDs(r), address)
        c.received.reset(readIDs(r))
        return c
    case KindFlood:
        c := &Flood{header: header{sender: sender, address: address}}
        c.received.reset(readIDs(r))
        return c
    default:
        r.Fail(fmt.Errorf("%w: cast kind %d", wire.ErrMalformed, k))
        return nil
    }
}

func writeIDs(w *wire.Writer, ids []ident.ID) {
    w.WriteLen(len(ids))
    for _, id := range ids {
        ident.Encode(w, id)
    }
}

func readIDs(r *wire.Reader) []ident.ID {
    n := r.ReadLen()
    if r.Err() != nil { return nil }
    if n*16 > r.MaxBytes {
        r.Fail(fmt.Errorf("%w: %d ids exceed limit", wire.ErrMalformed, n))
        return nil
    }
    ids := make([]ident.ID, 0, n)
    for i := 0; i < n; i++ {
        id := ident.Decode(r)
        if r.Err() != nil { return nil }
        ids = append(ids, id)
    }
    return ids
}
