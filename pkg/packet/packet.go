// Package packet defines the routed envelope and its wire layout.
//
//  id           16 bytes
//  timeToLive   int16
//  age          int16
//  flags        1 byte: bit0 also-send-to-self, bit1 urgent, bits2-3 cast kind
//  cast         cast payload
//  messageType  text
//  message      byte array
package packet

import (
    "bytes"
    "fmt"

    "paradis/pkg/cast"
    "paradis/pkg/ident"
    "paradis/pkg/wire"
)

const (
    flagSelf   = 1 << 0
    flagUrgent = 1 << 1
    kindShift  = 2
    kindMask   = 0x3 << kindShift
)

// Packet is one routed message. ID is its identity; Age counts hub hops.
type Packet struct {
    ID             ident.ID
    AlsoSendToSelf bool
    Urgent         bool
    TimeToLive     int16
    Age            int16
    Cast           cast.Cast
    Message        []byte
    MessageType    string
}

// CanPropagate reports whether the packet may be forwarded again.
func (p *Packet) CanPropagate() bool { return p.Age < p.TimeToLive }

func (p *Packet) String() string {
    return fmt.Sprintf("%s %s %q age=%d/%d", p.ID, p.Cast.Kind(), p.MessageType, p.Age, p.TimeToLive)
}

// Encode writes p in wire layout.
func Encode(w *wire.Writer, p *Packet) {
    if p == nil || p.Cast == nil {
        w.Fail(fmt.Errorf("packet: cannot encode packet without cast"))
        return
    }
    ident.Encode(w, p.ID)
    w.WriteInt16(p.TimeToLive)
    w.WriteInt16(p.Age)
    flags := uint8(p.Cast.Kind()) << kindShift
    if p.AlsoSendToSelf { flags |= flagSelf }
    if p.Urgent { flags |= flagUrgent }
    w.WriteUint8(flags)
    cast.Encode(w, p.Cast)
    w.WriteString(p.MessageType)
    w.WriteBytes(p.Message)
}

// Decode reads one packet. It returns nil when r has failed.
func Decode(r *wire.Reader) *Packet {
    p := &Packet{ID: ident.Decode(r)}
    p.TimeToLive = r.ReadInt16()
    p.Age = r.ReadInt16()
    flags := r.ReadUint8()
    if r.Err() != nil { return nil }
    if flags&^(flagSelf|flagUrgent|kindMask) != 0 {
        r.Fail(fmt.Errorf("%w: packet flags 0x%02x", wire.ErrMalformed, flags))
        return nil
    }
    p.AlsoSendToSelf = flags&flagSelf != 0
    p.Urgent = flags&flagUrgent != 0
    p.Cast = cast.Decode(r, cast.Kind(flags&kindMask>>kindShift))
    p.MessageType = r.ReadString()
    p.Message = r.ReadBytes()
    if r.Err() != nil { return nil }
    return p
}

// Register installs protocols for ident.ID and *Packet on reg.
func Register(reg *wire.Registry) {
    ident.Register(reg)
    wire.RegisterFunc(reg, Encode, Decode)
}

// Marshal returns the wire form of p.
func Marshal(p *Packet) ([]byte, error) {
    var buf bytes.Buffer
    w := wire.NewWriter(&buf, nil)
    Encode(w, p)
    if err := w.Err(); err != nil { return nil, err }
    return buf.Bytes(), nil
}

// Unmarshal parses a packet from b. Trailing bytes are malformed.
func Unmarshal(b []byte) (*Packet, error) {
    rd := bytes.NewReader(b)
    r := wire.NewReader(rd, nil)
    p := Decode(r)
    if err := r.Err(); err != nil { return nil, err }
    if rd.Len() != 0 { return nil, fmt.Errorf("%w: %d trailing bytes", wire.ErrMalformed, rd.Len()) }
    return p, nil
}

// Size returns the encoded size of p without encoding it.
func Size(p *Packet) int {
    w := wire.NewProbe(nil)
    Encode(w, p)
    return int(w.Written())
}
