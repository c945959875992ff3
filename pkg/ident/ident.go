// Package ident provides the 128-bit identifiers used for peers and packets.
//
// Hi carries nanoseconds from a monotonic clock anchored at wall time; Lo
// packs a hash of the local principal name, a rolling counter and random
// bits. IDs order by Hi, then Lo.
package ident

import (
    "encoding/hex"
    "errors"
    "fmt"
    "slices"

    "paradis/pkg/wire"
)

// ID is an immutable 128-bit identifier. The zero ID is never generated.
type ID struct {
    Hi uint64
    Lo uint64
}

// Zero is the unset identifier.
var Zero ID

var errSyntax = errors.New("ident: invalid identifier syntax")

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return id == Zero }

// Compare returns -1, 0 or +1.
func (id ID) Compare(o ID) int {
    switch {
    case id.Hi < o.Hi:
        return -1
    case id.Hi > o.Hi:
        return 1
    case id.Lo < o.Lo:
        return -1
    case id.Lo > o.Lo:
        return 1
    }
    return 0
}

func (id ID) Less(o ID) bool { return id.Compare(o) < 0 }

// String returns the 8-4-4-4-12 lowercase hex form.
func (id ID) String() string {
    var raw [16]byte
    putUint64(raw[:8], id.Hi)
    putUint64(raw[8:], id.Lo)
    var out [36]byte
    hex.Encode(out[0:8], raw[0:4])
    out[8] = '-'
    hex.Encode(out[9:13], raw[4:6])
    out[13] = '-'
    hex.Encode(out[14:18], raw[6:8])
    out[18] = '-'
    hex.Encode(out[19:23], raw[8:10])
    out[23] = '-'
    hex.Encode(out[24:36], raw[10:16])
    return string(out[:])
}

// Parse reads the form produced by String. Upper-case hex is accepted.
func Parse(s string) (ID, error) {
    if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
        return Zero, fmt.Errorf("%w: %q", errSyntax, s)
    }
    digits := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
    var raw [16]byte
    if _, err := hex.Decode(raw[:], []byte(digits)); err != nil {
        return Zero, fmt.Errorf("%w: %q", errSyntax, s)
    }
    return ID{Hi: getUint64(raw[:8]), Lo: getUint64(raw[8:])}, nil
}

// MustParse is Parse that panics; for tests and constants.
func MustParse(s string) ID {
    id, err := Parse(s)
    if err != nil { panic(err) }
    return id
}

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
    v, err := Parse(string(b))
    if err != nil { return err }
    *id = v
    return nil
}

// Sort orders ids ascending in place.
func Sort(ids []ID) { slices.SortFunc(ids, ID.Compare) }

// Encode writes id as two big-endian 64-bit integers.
func Encode(w *wire.Writer, id ID) {
    w.WriteUint64(id.Hi)
    w.WriteUint64(id.Lo)
}

// Decode reads an ID written by Encode.
func Decode(r *wire.Reader) ID {
    hi := r.ReadUint64()
    lo := r.ReadUint64()
    return ID{Hi: hi, Lo: lo}
}

// Register installs the ID protocol on reg. Arrays of IDs then follow the
// registry's array rule.
func Register(reg *wire.Registry) { wire.RegisterFunc(reg, Encode, Decode) }

func putUint64(b []byte, v uint64) {
    for i := 7; i >= 0; i-- {
        b[i] = byte(v)
        v >>= 8
    }
}

func getUint64(b []byte) uint64 {
    var v uint64
    for _, x := range b[:8] {
        v = v<<8 | uint64(x)
    }
    return v
}
