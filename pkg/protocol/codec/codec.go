// Package codec holds the payload body codecs a packet message can be
// encoded with. The format travels as the first byte of the body.
package codec

import (
    "errors"
    "fmt"
    "sync"
)

// Codec marshals typed values. Implementations must be deterministic so
// that equal values produce equal bodies on every node.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Format is the one-byte body format marker.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

const (
    ContentJSON  = "application/json"
    ContentCBOR  = "application/cbor"
    ContentProto = "application/x-protobuf"
)

func (f Format) ContentType() string {
    switch f {
    case FormatJSON:
        return ContentJSON
    case FormatCBOR:
        return ContentCBOR
    case FormatProto:
        return ContentProto
    default:
        return "application/octet-stream"
    }
}

// ErrUnknownFormat is returned for body formats without a codec.
var ErrUnknownFormat = errors.New("codec: unknown body format")

// Registry maps body formats to codecs. It is safe for concurrent use.
type Registry struct {
    mu       sync.RWMutex
    byFormat map[Format]Codec
}

// NewRegistry returns a registry with JSON, CBOR and Protobuf installed.
func NewRegistry() *Registry {
    r := &Registry{byFormat: make(map[Format]Codec)}
    r.Register(FormatJSON, JSON())
    r.Register(FormatCBOR, CBOR())
    r.Register(FormatProto, Proto())
    return r
}

// Register installs c for f, replacing any earlier codec.
func (r *Registry) Register(f Format, c Codec) {
    r.mu.Lock()
    r.byFormat[f] = c
    r.mu.Unlock()
}

// Get returns the codec for f.
func (r *Registry) Get(f Format) (Codec, error) {
    r.mu.RLock()
    c := r.byFormat[f]
    r.mu.RUnlock()
    if c == nil { return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, f) }
    return c, nil
}

// Encode marshals v with the codec for f and prefixes the format byte.
func (r *Registry) Encode(f Format, v any) ([]byte, error) {
    c, err := r.Get(f)
    if err != nil { return nil, err }
    b, err := c.Marshal(v)
    if err != nil { return nil, fmt.Errorf("codec: %s marshal: %w", c.ContentType(), err) }
    return append([]byte{byte(f)}, b...), nil
}

// Decode unmarshals a body produced by Encode into v and returns its format.
func (r *Registry) Decode(body []byte, v any) (Format, error) {
    if len(body) == 0 { return FormatUnknown, fmt.Errorf("%w: empty body", ErrUnknownFormat) }
    f := Format(body[0])
    c, err := r.Get(f)
    if err != nil { return f, err }
    if err := c.Unmarshal(body[1:], v); err != nil {
        return f, fmt.Errorf("codec: %s unmarshal: %w", c.ContentType(), err)
    }
    return f, nil
}
