package transport

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodec implements encoding.Codec using encoding/gob. Registered under
// the name "proto" (grpc-go's default content-subtype), it replaces the
// stock protobuf codec: every message type this package sends over the wire
// is a plain exported struct, not a generated proto.Message, so gob is what
// actually walks the wire here.
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

func (gobCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
