// Package workerrpc exposes the worker's three control-plane
// operations (Preprocess, Execute, Commit) as a grpc.Server service.
// protoc is not available in this build environment, so the service
// is wired by hand against a grpc.ServiceDesc instead of generated
// stubs, using a JSON wire codec registered under its own content
// subtype rather than protobuf's binary wire format.
package workerrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "brane-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec, letting
// the worker RPC service move plain Go structs over grpc's streaming
// transport without a .proto-generated marshaler.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("workerrpc: marshaling %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("workerrpc: unmarshaling into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }
