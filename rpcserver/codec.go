package rpcserver

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec marshals the plain Go structs in this package as JSON on
// the wire, standing in for protobuf-generated marshaling: this
// repository carries no protoc-generated code, so RemoteConnection's
// wire format is a real grpc.Codec rather than a hand-rolled one.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
