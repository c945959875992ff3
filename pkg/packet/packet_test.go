package packet

import (
    "bytes"
    "errors"
    "testing"

    "paradis/pkg/cast"
    "paradis/pkg/ident"
    "paradis/pkg/protocol/codec"
    "paradis/pkg/wire"
)

func newFactory(name string, opts ...Option) Factory {
    g := ident.NewGenerator(name)
    return NewFactory(g.New(), g, opts...)
}

func TestFactoryForkDoesNotMutate(t *testing.T) {
    base := newFactory("a", WithTTL(4))
    fork := base.With(WithUrgent(true), WithLoopback(true), WithTTL(1), WithAddress("h:1"))
    if base.Urgent() || base.Loopback() || base.TTL() != 4 || base.Address() != "" { t.Fatalf("base mutated: %+v", base) }
    if !fork.Urgent() || !fork.Loopback() || fork.TTL() != 1 || fork.Sender() != base.Sender() { t.Fatalf("fork = %+v", fork) }

    p := fork.Flood("x", nil)
    if !p.Urgent || !p.AlsoSendToSelf || p.TimeToLive != 1 || p.Age != 0 || p.Cast.Address() != "h:1" {
        t.Fatalf("packet defaults: %+v", p)
    }
    if q := base.Flood("x", nil); q.ID == p.ID || !p.ID.Less(q.ID) { t.Fatalf("ids not increasing") }
}

func TestFactoryKinds(t *testing.T) {
    f := newFactory("a")
    other := ident.ID{Hi: 9}
    cases := map[cast.Kind]*Packet{
        cast.KindDirect:         f.Direct("t", nil),
        cast.KindSingleReceiver: f.To(other, "t", nil),
        cast.KindFixedGroup:     f.Group([]ident.ID{other}, "t", nil),
        cast.KindFlood:          f.Flood("t", nil),
    }
    for k, p := range cases {
        if p.Cast.Kind() != k || p.Cast.Sender() != f.Sender() || p.TimeToLive != DefaultTTL {
            t.Fatalf("%s: %+v", k, p)
        }
    }
}

func TestMarshalRoundtrip(t *testing.T) {
    f := newFactory("a", WithAddress("10.1.1.1:4000"))
    g := f.Group([]ident.ID{{Hi: 7}, {Hi: 3}}, "job.submit", []byte("payload"))
    g.Cast.AddReceived(ident.ID{Hi: 3})
    g.Age = 2
    g.Urgent = true

    pkts := []*Packet{f.Direct("ping", nil), f.To(ident.ID{Hi: 5}, "ünï", []byte{0}), g, f.With(WithLoopback(true)).Flood("f", make([]byte, 70000))}
    for _, in := range pkts {
        b, err := Marshal(in)
        if err != nil { t.Fatalf("marshal: %v", err) }
        if len(b) != Size(in) { t.Fatalf("Size = %d, encoded %d", Size(in), len(b)) }
        out, err := Unmarshal(b)
        if err != nil { t.Fatalf("unmarshal %s: %v", in, err) }
        if out.ID != in.ID || out.Age != in.Age || out.TimeToLive != in.TimeToLive || out.Urgent != in.Urgent ||
            out.AlsoSendToSelf != in.AlsoSendToSelf || out.MessageType != in.MessageType || !bytes.Equal(out.Message, in.Message) {
            t.Fatalf("mismatch:\n in=%s\nout=%s", in, out)
        }
        if out.Cast.Kind() != in.Cast.Kind() || out.Cast.Address() != in.Cast.Address() { t.Fatalf("cast mismatch") }
    }
}

func TestWireLayoutHeader(t *testing.T) {
    p := &Packet{ID: ident.ID{Hi: 1, Lo: 2}, TimeToLive: 3, Age: 1, Urgent: true, Cast: cast.NewFlood(ident.ID{}, "")}
    b, err := Marshal(p)
    if err != nil { t.Fatalf("marshal: %v", err) }
    want := []byte{0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 3, 0, 1, flagUrgent | 3<<kindShift}
    if !bytes.Equal(b[:len(want)], want) { t.Fatalf("header % x", b[:len(want)]) }
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
    p := newFactory("a").Flood("x", []byte("y"))
    b, _ := Marshal(p)
    bad := append([]byte(nil), b...)
    bad[20] |= 0x80
    if _, err := Unmarshal(bad); !errors.Is(err, wire.ErrMalformed) { t.Fatalf("flags err = %v", err) }
    if _, err := Unmarshal(append(b, 0)); !errors.Is(err, wire.ErrMalformed) { t.Fatalf("trailing err = %v", err) }
    if _, err := Unmarshal(b[:10]); err == nil { t.Fatalf("expected error on truncated packet") }
}

func TestRegistryObject(t *testing.T) {
    reg := wire.NewRegistry()
    Register(reg)
    f := newFactory("a")
    in := []*Packet{f.Flood("a", nil), f.Direct("b", []byte{1})}
    var buf bytes.Buffer
    w := wire.NewWriter(&buf, reg)
    w.WriteObject(in)
    out := wire.ReadAs[[]*Packet](wire.NewReader(&buf, reg))
    if len(out) != 2 || out[0].ID != in[0].ID || out[1].MessageType != "b" { t.Fatalf("out = %v", out) }
}

type task struct {
    Name string `json:"name" cbor:"name"`
}

func TestBody(t *testing.T) {
    reg := codec.NewRegistry()
    p := newFactory("a").Flood("task", nil)
    if err := p.SetBody(reg, codec.FormatCBOR, task{Name: "x"}); err != nil { t.Fatalf("set: %v", err) }
    var out task
    f, err := p.Body(reg, &out)
    if err != nil || f != codec.FormatCBOR || out.Name != "x" { t.Fatalf("body = %v %+v %v", f, out, err) }
}
