// Package codec turns cached values into the opaque byte payloads the store keeps.
//
// A Codec must round-trip: Decode(Encode(v)) == v for every value it accepts.
// Callers treat Decode errors as "absent", so a codec should fail loudly on
// foreign or truncated input rather than return a partially filled value.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Func adapts a pair of plain functions into a Codec.
type Func[V any] struct {
	EncodeFunc func(V) ([]byte, error)
	DecodeFunc func([]byte) (V, error)
}

func (f Func[V]) Encode(v V) ([]byte, error) { return f.EncodeFunc(v) }
func (f Func[V]) Decode(b []byte) (V, error) { return f.DecodeFunc(b) }
