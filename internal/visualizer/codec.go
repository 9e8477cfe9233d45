package visualizer

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodecName is the content-subtype clients must request, e.g. via
// grpc.CallContentSubtype(gobCodecName) on the dial options.
const gobCodecName = "gob"

// gobCodec adapts encoding/gob to grpc's pluggable wire codec, since this
// package carries no protoc-generated message types.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string {
	return gobCodecName
}

func init() {
	encoding.RegisterCodec(gobCodec{})
}
