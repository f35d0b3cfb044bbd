package catalog

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

type wireMessage interface {
	marshalWire() []byte
	unmarshalWire([]byte) error
}

// codec is a gRPC codec for the hand-encoded inventory messages. It reports
// the "proto" content subtype so servers built from the .proto accept it.
type codec struct{}

var _ encoding.Codec = codec{}

func (codec) Name() string { return "proto" }

func (codec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("catalog codec: cannot marshal %T", v)
	}
	return msg.marshalWire(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("catalog codec: cannot unmarshal into %T", v)
	}
	return msg.unmarshalWire(data)
}
