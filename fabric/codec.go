package fabric

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// rpcCodecName is the content-subtype fabric's hand-rolled services speak
// on the wire. There's no .proto in this tree to run protoc-gen-go-grpc
// against, so fabric registers a plain JSON codec under grpc's pluggable
// encoding.Codec interface instead of generating one -- the RPCs below
// are the handwritten equivalent of what that codegen would have produced.
const rpcCodecName = "fabricjson"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return rpcCodecName }
