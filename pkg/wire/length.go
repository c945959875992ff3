package wire

import (
    "encoding/binary"
    "fmt"
)

// Compressed length layout:
//
//  0xxxxxxx xxxxxxxx                    n in [0, 0x7FFF]
//  1xxxxxxx xxxxxxxx xxxxxxxx xxxxxxxx  n in [0x8000, 0x7FFFFFFF]
//
// The long form stores all 31 value bits, so every length in range
// round-trips exactly.
const (
    shortLenMax = 0x7FFF
    longLenFlag = 0x80000000
)

// LenSize returns the encoded size of the compressed length n.
func LenSize(n int) int {
    if n <= shortLenMax { return 2 }
    return 4
}

// WriteLen writes n as a compressed length.
func (w *Writer) WriteLen(n int) {
    if n < 0 || n > MaxLength {
        w.Fail(fmt.Errorf("%w: %d", ErrLength, n))
        return
    }
    if n <= shortLenMax {
        binary.BigEndian.PutUint16(w.buf[:2], uint16(n))
        w.write(w.buf[:2])
        return
    }
    binary.BigEndian.PutUint32(w.buf[:4], uint32(n)|longLenFlag)
    w.write(w.buf[:4])
}

// ReadLen reads a compressed length.
func (r *Reader) ReadLen() int {
    if !r.read(r.buf[:2]) { return 0 }
    hi := binary.BigEndian.Uint16(r.buf[:2])
    if hi&0x8000 == 0 { return int(hi) }
    if !r.read(r.buf[2:4]) { return 0 }
    n := int(binary.BigEndian.Uint32(r.buf[:4]) &^ longLenFlag)
    if n <= shortLenMax {
        r.malformed("non-canonical long length %d", n)
        return 0
    }
    return n
}
