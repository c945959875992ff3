package cast

import (
    "bytes"
    "sync"
    "testing"

    "paradis/pkg/ident"
    "paradis/pkg/wire"
)

var (
    a = ident.ID{Hi: 1, Lo: 1}
    b = ident.ID{Hi: 2, Lo: 2}
    c = ident.ID{Hi: 3, Lo: 3}
    d = ident.ID{Hi: 4, Lo: 4}
)

func TestReceivedSetDedup(t *testing.T) {
    var s ReceivedSet
    for _, id := range []ident.ID{c, a, b, a, c, c} {
        s.Add(id)
    }
    got := s.Snapshot()
    want := []ident.ID{a, b, c}
    if len(got) != len(want) { t.Fatalf("snapshot = %v", got) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("snapshot = %v", got) }
    }
    if s.Add(b) { t.Fatalf("second Add reported new") }
    if !s.Has(b) || s.Has(d) { t.Fatalf("Has mismatch") }
}

func TestReceivedSetConcurrent(t *testing.T) {
    var s ReceivedSet
    var wg sync.WaitGroup
    for g := 0; g < 8; g++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for i := uint64(0); i < 200; i++ {
                s.Add(ident.ID{Hi: i % 50})
            }
        }()
    }
    wg.Wait()
    if s.Len() != 50 { t.Fatalf("len = %d", s.Len()) }
}

func TestAddReceivedSemantics(t *testing.T) {
    casts := []Cast{NewFixedGroup(a, []ident.ID{b, c}, ""), NewFlood(a, "")}
    for _, x := range casts {
        if !x.HasReceived(a) { t.Fatalf("%s: sender not seeded", x.Kind()) }
        x.AddReceived(d)
        x.AddReceived(d)
        if !x.HasReceived(d) { t.Fatalf("%s: AddReceived not recorded", x.Kind()) }
    }
    for _, x := range []Cast{NewDirect(a, ""), NewSingleReceiver(a, b, "")} {
        x.AddReceived(b)
        if x.HasReceived(b) || x.HasReceived(a) { t.Fatalf("%s must not track receipt", x.Kind()) }
    }
}

func TestFixedGroupReceivers(t *testing.T) {
    g := NewFixedGroup(a, []ident.ID{c, b, c}, "")
    if rs := g.Receivers(); len(rs) != 2 || rs[0] != b || rs[1] != c { t.Fatalf("receivers = %v", rs) }
    if !g.IsReceiver(b) || g.IsReceiver(a) { t.Fatalf("IsReceiver mismatch") }
    if n := g.Unreached(b); n != 1 { t.Fatalf("Unreached(b) = %d", n) }
    g.AddReceived(c)
    if n := g.Unreached(b); n != 0 { t.Fatalf("Unreached(b) after c = %d", n) }
}

type kindName struct{}

func (kindName) Direct(*Direct) string                 { return "direct" }
func (kindName) SingleReceiver(*SingleReceiver) string { return "single" }
func (kindName) FixedGroup(*FixedGroup) string         { return "group" }
func (kindName) Flood(*Flood) string                   { return "flood" }

func TestMatch(t *testing.T) {
    casts := []Cast{NewDirect(a, ""), NewSingleReceiver(a, b, ""), NewFixedGroup(a, nil, ""), NewFlood(a, "")}
    for _, x := range casts {
        if got := Match[string](x, kindName{}); got != x.Kind().String() {
            t.Fatalf("Match = %s for %s", got, x.Kind())
        }
    }
}

func roundtrip(t *testing.T, in Cast) Cast {
    t.Helper()
    var buf bytes.Buffer
    w := wire.NewWriter(&buf, nil)
    Encode(w, in)
    if w.Err() != nil { t.Fatalf("encode: %v", w.Err()) }
    r := wire.NewReader(&buf, nil)
    out := Decode(r, in.Kind())
    if r.Err() != nil { t.Fatalf("decode: %v", r.Err()) }
    if out.Kind() != in.Kind() || out.Sender() != in.Sender() || out.Address() != in.Address() {
        t.Fatalf("header mismatch: %+v vs %+v", out, in)
    }
    return out
}

func TestCodecRoundtrip(t *testing.T) {
    roundtrip(t, NewDirect(a, "10.0.0.1:7777"))
    s := roundtrip(t, NewSingleReceiver(a, c, "")).(*SingleReceiver)
    if s.Target() != c { t.Fatalf("target = %s", s.Target()) }

    g := NewFixedGroup(a, []ident.ID{b, c}, "host:1")
    g.AddReceived(b)
    g2 := roundtrip(t, g).(*FixedGroup)
    if rs := g2.Receivers(); len(rs) != 2 { t.Fatalf("receivers = %v", rs) }
    if !g2.HasReceived(a) || !g2.HasReceived(b) || g2.HasReceived(c) { t.Fatalf("received = %v", g2.Received()) }

    f := NewFlood(a, "")
    f.AddReceived(d)
    f2 := roundtrip(t, f).(*Flood)
    if got := f2.Received(); len(got) != 2 || got[0] != a || got[1] != d { t.Fatalf("received = %v", got) }
}
