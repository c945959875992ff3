package wire

import (
    "reflect"
    "sync"
)

// Protocol reads and writes values of one concrete type. Failures are
// reported through Writer.Fail / Reader.Fail.
type Protocol interface {
    Write(w *Writer, v any)
    Read(r *Reader) any
}

// Registry maps runtime types to protocols. It is passed explicitly to
// writers and readers; there is no package-level registry.
//
// A slice type without its own protocol is encoded as a compressed length
// followed by its elements, provided the element type is registered.
type Registry struct {
    mu     sync.RWMutex
    byType map[reflect.Type]Protocol
}

// NewRegistry returns a registry preloaded with the primitive protocols:
// bool, uint8, int16, int32, int64, string and []byte.
func NewRegistry() *Registry {
    r := &Registry{byType: make(map[reflect.Type]Protocol)}
    RegisterFunc(r, (*Writer).WriteBool, (*Reader).ReadBool)
    RegisterFunc(r, (*Writer).WriteUint8, (*Reader).ReadUint8)
    RegisterFunc(r, (*Writer).WriteInt16, (*Reader).ReadInt16)
    RegisterFunc(r, (*Writer).WriteInt32, (*Reader).ReadInt32)
    RegisterFunc(r, (*Writer).WriteInt64, (*Reader).ReadInt64)
    RegisterFunc(r, (*Writer).WriteString, (*Reader).ReadString)
    RegisterFunc(r, (*Writer).WriteBytes, (*Reader).ReadBytes)
    return r
}

// Register installs p for t, replacing any earlier protocol.
func (r *Registry) Register(t reflect.Type, p Protocol) {
    r.mu.Lock()
    r.byType[t] = p
    r.mu.Unlock()
}

// Lookup returns the protocol for t, deriving one for slices of
// registered element types.
func (r *Registry) Lookup(t reflect.Type) (Protocol, bool) {
    r.mu.RLock()
    p, ok := r.byType[t]
    r.mu.RUnlock()
    if ok { return p, true }
    if t.Kind() != reflect.Slice { return nil, false }
    elem, ok := r.Lookup(t.Elem())
    if !ok { return nil, false }
    return sliceProtocol{typ: t, elem: elem}, true
}

// RegisterFunc registers a protocol for T built from a write and a read
// function.
func RegisterFunc[T any](r *Registry, write func(*Writer, T), read func(*Reader) T) {
    r.Register(reflect.TypeFor[T](), funcProtocol[T]{write: write, read: read})
}

type funcProtocol[T any] struct {
    write func(*Writer, T)
    read  func(*Reader) T
}

func (p funcProtocol[T]) Write(w *Writer, v any) {
    t, ok := v.(T)
    if !ok {
        w.Fail(&typeError{want: reflect.TypeFor[T](), got: reflect.TypeOf(v)})
        return
    }
    p.write(w, t)
}

func (p funcProtocol[T]) Read(r *Reader) any { return p.read(r) }

type sliceProtocol struct {
    typ  reflect.Type
    elem Protocol
}

func (p sliceProtocol) Write(w *Writer, v any) {
    rv := reflect.ValueOf(v)
    w.WriteLen(rv.Len())
    for i := 0; i < rv.Len() && w.err == nil; i++ {
        p.elem.Write(w, rv.Index(i).Interface())
    }
}

func (p sliceProtocol) Read(r *Reader) any {
    n := r.ReadLen()
    if r.err != nil { return reflect.Zero(p.typ).Interface() }
    // Every element takes at least one byte, so cap the preallocation.
    out := reflect.MakeSlice(p.typ, 0, min(n, preallocLimit))
    for i := 0; i < n; i++ {
        x := p.elem.Read(r)
        if r.err != nil { return reflect.Zero(p.typ).Interface() }
        xv := reflect.Zero(p.typ.Elem())
        if x != nil { xv = reflect.ValueOf(x) }
        out = reflect.Append(out, xv)
    }
    return out.Interface()
}

type typeError struct {
    want, got reflect.Type
}

func (e *typeError) Error() string {
    return "wire: protocol for " + e.want.String() + " given " + typeName(e.got)
}

func typeName(t reflect.Type) string {
    if t == nil { return "nil" }
    return t.String()
}
