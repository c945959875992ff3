// Package wire implements the Paradis binary codec used for packets on the
// wire and for small on-disk records.
//
// Integers are fixed-width big-endian. Variable-sized values (strings, byte
// arrays, arrays of registered objects) carry a compressed length prefix.
// Text is written as a sequence of variable-width code points.
//
// Writer and Reader keep a sticky error: after the first failure every
// further call is a no-op and Err reports the cause.
package wire

import (
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "reflect"
    "slices"
)

var (
    // ErrMalformed wraps every decode failure caused by invalid input bytes.
    ErrMalformed = errors.New("wire: malformed input")
    // ErrLength is reported for lengths outside [0, MaxLength].
    ErrLength = errors.New("wire: length out of range")
)

// MaxLength is the largest value a compressed length prefix can carry.
const MaxLength = 1<<31 - 1

// DefaultMaxBytes bounds byte arrays and strings accepted by a Reader.
const DefaultMaxBytes = 16 << 20

// preallocLimit caps the buffer reserved from a length prefix before the
// bytes behind it have arrived.
const preallocLimit = 1024

// Writer encodes values onto an io.Writer.
type Writer struct {
    w   io.Writer
    reg *Registry
    buf [8]byte
    n   int64
    err error
}

// NewWriter returns a Writer using reg for WriteObject. reg may be nil when
// only primitives are written.
func NewWriter(w io.Writer, reg *Registry) *Writer { return &Writer{w: w, reg: reg} }

// NewProbe returns a Writer that discards its output and only counts bytes.
// Written reports the encoded size afterwards.
func NewProbe(reg *Registry) *Writer { return NewWriter(io.Discard, reg) }

// SizeOf returns the number of bytes WriteObject(v) produces.
func SizeOf(reg *Registry, v any) (int, error) {
    p := NewProbe(reg)
    p.WriteObject(v)
    if p.err != nil { return 0, p.err }
    return int(p.n), nil
}

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }

// Registry returns the registry used for objects.
func (w *Writer) Registry() *Registry { return w.reg }

// Fail records err unless an earlier error is already recorded.
func (w *Writer) Fail(err error) {
    if w.err == nil && err != nil { w.err = err }
}

func (w *Writer) write(b []byte) {
    if w.err != nil { return }
    n, err := w.w.Write(b)
    w.n += int64(n)
    if err != nil { w.err = err }
}

func (w *Writer) WriteUint8(v uint8) {
    w.buf[0] = v
    w.write(w.buf[:1])
}

func (w *Writer) WriteBool(v bool) {
    if v {
        w.WriteUint8(1)
    } else {
        w.WriteUint8(0)
    }
}

func (w *Writer) WriteInt16(v int16) {
    binary.BigEndian.PutUint16(w.buf[:2], uint16(v))
    w.write(w.buf[:2])
}

func (w *Writer) WriteInt32(v int32) {
    binary.BigEndian.PutUint32(w.buf[:4], uint32(v))
    w.write(w.buf[:4])
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteUint64(v uint64) {
    binary.BigEndian.PutUint64(w.buf[:8], v)
    w.write(w.buf[:8])
}

// WriteBytes writes a compressed length followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
    w.WriteLen(len(b))
    w.write(b)
}

// WriteObject encodes v with the protocol registered for its dynamic type.
func (w *Writer) WriteObject(v any) {
    if w.err != nil { return }
    if v == nil {
        w.Fail(errors.New("wire: cannot write nil object"))
        return
    }
    if w.reg == nil {
        w.Fail(errors.New("wire: writer has no registry"))
        return
    }
    t := reflect.TypeOf(v)
    p, ok := w.reg.Lookup(t)
    if !ok {
        w.Fail(fmt.Errorf("wire: no protocol registered for %s", t))
        return
    }
    p.Write(w, v)
}

// Reader decodes values from an io.Reader.
type Reader struct {
    r   io.Reader
    reg *Registry
    buf [8]byte
    err error

    // MaxBytes bounds byte arrays and strings; lengths above it are malformed.
    MaxBytes int
}

// NewReader returns a Reader using reg for ReadObject.
func NewReader(r io.Reader, reg *Registry) *Reader {
    return &Reader{r: r, reg: reg, MaxBytes: DefaultMaxBytes}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Registry returns the registry used for objects.
func (r *Reader) Registry() *Registry { return r.reg }

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
    if r.err == nil && err != nil { r.err = err }
}

func (r *Reader) malformed(format string, args ...any) {
    r.Fail(fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...)))
}

func (r *Reader) read(b []byte) bool {
    if r.err != nil { return false }
    if _, err := io.ReadFull(r.r, b); err != nil {
        r.err = err
        return false
    }
    return true
}

func (r *Reader) ReadUint8() uint8 {
    if !r.read(r.buf[:1]) { return 0 }
    return r.buf[0]
}

func (r *Reader) ReadBool() bool {
    switch b := r.ReadUint8(); b {
    case 0:
        return false
    case 1:
        return true
    default:
        r.malformed("bool byte 0x%02x", b)
        return false
    }
}

func (r *Reader) ReadInt16() int16 {
    if !r.read(r.buf[:2]) { return 0 }
    return int16(binary.BigEndian.Uint16(r.buf[:2]))
}

func (r *Reader) ReadInt32() int32 {
    if !r.read(r.buf[:4]) { return 0 }
    return int32(binary.BigEndian.Uint32(r.buf[:4]))
}

func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

func (r *Reader) ReadUint64() uint64 {
    if !r.read(r.buf[:8]) { return 0 }
    return binary.BigEndian.Uint64(r.buf[:8])
}

// ReadBytes reads a compressed length followed by that many raw bytes.
func (r *Reader) ReadBytes() []byte {
    n := r.ReadLen()
    if r.err != nil { return nil }
    if n > r.MaxBytes {
        r.malformed("byte array of %d bytes exceeds limit %d", n, r.MaxBytes)
        return nil
    }
    b := make([]byte, 0, min(n, preallocLimit))
    for len(b) < n {
        off := len(b)
        k := min(n-off, max(off, preallocLimit))
        b = slices.Grow(b, k)[:off+k]
        if !r.read(b[off:]) { return nil }
    }
    return b
}

// ReadObject decodes a value of type t with its registered protocol.
func (r *Reader) ReadObject(t reflect.Type) any {
    if r.err != nil { return nil }
    if r.reg == nil {
        r.Fail(errors.New("wire: reader has no registry"))
        return nil
    }
    p, ok := r.reg.Lookup(t)
    if !ok {
        r.Fail(fmt.Errorf("wire: no protocol registered for %s", t))
        return nil
    }
    return p.Read(r)
}

// ReadAs decodes a value of type T with its registered protocol.
func ReadAs[T any](r *Reader) T {
    var zero T
    v := r.ReadObject(reflect.TypeFor[T]())
    if r.err != nil || v == nil { return zero }
    out, ok := v.(T)
    if !ok {
        r.Fail(fmt.Errorf("wire: protocol for %s returned %T", reflect.TypeFor[T](), v))
        return zero
    }
    return out
}
