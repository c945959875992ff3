package codec

import (
    "fmt"

    "google.golang.org/protobuf/proto"
)

type protoCodec struct{}

var (
    protoMarshal   = proto.MarshalOptions{Deterministic: true}
    protoUnmarshal = proto.UnmarshalOptions{DiscardUnknown: true}
)

// Proto returns a deterministic Protocol Buffers codec. Values must
// implement proto.Message.
func Proto() Codec { return protoCodec{} }

func (protoCodec) ContentType() string { return ContentProto }

func (protoCodec) Marshal(v any) ([]byte, error) {
    msg, ok := v.(proto.Message)
    if !ok { return nil, fmt.Errorf("protobuf: %T is not a proto.Message", v) }
    return protoMarshal.Marshal(msg)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
    msg, ok := v.(proto.Message)
    if !ok { return fmt.Errorf("protobuf: %T is not a proto.Message", v) }
    return protoUnmarshal.Unmarshal(data, msg)
}
