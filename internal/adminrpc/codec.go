package adminrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc.encoding.Codec registered under the name "proto",
// the content-subtype grpc-go reaches for when a call site does not ask
// for one explicitly. Nothing in this module runs protoc, so there are
// no generated Marshal/Unmarshal methods for the admin request/response
// types to hang off of; registering a JSON codec under grpc's default
// name lets plain Go structs travel over the same HTTP/2 transport and
// interceptor chain a protoc-generated service would use, without
// requiring a .proto toolchain step anywhere in the build.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
