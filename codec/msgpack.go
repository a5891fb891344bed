package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes values with vmihailenco/msgpack/v5. Zero value is ready.
//
// It is the default payload format for cached HTTP responses: compact, binary-safe
// for bodies, and it keeps []byte fields as raw bin blocks instead of base64.
// Use `msgpack:"name"` tags when field names must stay stable across versions.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
