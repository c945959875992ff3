package packet

import "paradis/pkg/protocol/codec"

// SetBody encodes v into p.Message with the codec for format.
func (p *Packet) SetBody(reg *codec.Registry, format codec.Format, v any) error {
    b, err := reg.Encode(format, v)
    if err != nil { return err }
    p.Message = b
    return nil
}

// Body decodes p.Message into v and returns the format it was written in.
func (p *Packet) Body(reg *codec.Registry, v any) (codec.Format, error) {
    return reg.Decode(p.Message, v)
}
