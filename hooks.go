package distcache

import "github.com/unkn0wn-root/distcache/store"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run inline on every
// cache call that triggers them. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A store call returned a non-success status.
	// op ∈ {"get", "insert", "upsert", "touch", "remove"}
	StoreFailure(op, storageKey string, status store.Status, err error)

	// A stored payload could not be decoded and was served as a miss.
	DecodeFailure(storageKey string, err error)

	// Add saw the key taken on insert but gone on the follow-up read,
	// and stored the caller's entry unconditionally.
	RaceFallback(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StoreFailure(string, string, store.Status, error) {}
func (NopHooks) DecodeFailure(string, error)                      {}
func (NopHooks) RaceFallback(string)                              {}
