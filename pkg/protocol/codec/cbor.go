package codec

import (
    cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
    enc cbor.EncMode
    dec cbor.DecMode
}

var (
    cborEnc = mustEnc(cbor.CoreDetEncOptions())
    cborDec = mustDec(cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF})
)

// CBOR returns a codec using core deterministic encoding (RFC 8949 4.2.1).
func CBOR() Codec { return cborCodec{enc: cborEnc, dec: cborDec} }

func (cborCodec) ContentType() string                    { return ContentCBOR }
func (c cborCodec) Marshal(v any) ([]byte, error)         { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error    { return c.dec.Unmarshal(data, v) }

func mustEnc(o cbor.EncOptions) cbor.EncMode {
    m, err := o.EncMode()
    if err != nil { panic(err) }
    return m
}

func mustDec(o cbor.DecOptions) cbor.DecMode {
    m, err := o.DecMode()
    if err != nil { panic(err) }
    return m
}
