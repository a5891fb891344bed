package codec

import "fmt"

// Limit refuses to decode payloads larger than MaxDecode bytes; Encode is
// forwarded to Inner unchanged. MaxDecode <= 0 disables the check.
//
// Wrap codecs reading from a store shared with other writers, so one oversized
// entry cannot force a huge allocation in every reader.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
