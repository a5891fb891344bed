package distcache

import (
	"context"

	"github.com/unkn0wn-root/distcache/store"
)

// ErrorPolicy decides what a failed store call means for the caller.
//
// Every failure is logged and sent to Hooks. The error is returned only when
// Throw is set or when the caller's own context is done; otherwise the
// operation degrades (Get reads as a miss, writes are accepted silently).
// The zero value logs nowhere and never throws.
type ErrorPolicy struct {
	Throw  bool
	Logger Logger
	Hooks  Hooks
}

// NewErrorPolicy fills nil Logger/Hooks with no-op implementations.
func NewErrorPolicy(throw bool, l Logger, h Hooks) ErrorPolicy {
	return ErrorPolicy{
		Throw:  throw,
		Logger: coalesce[Logger](l, NopLogger{}),
		Hooks:  coalesce[Hooks](h, NopHooks{}),
	}
}

// HandleStore reports err from store operation op on key and returns the error
// to surface, or nil when the policy swallows it.
func (p ErrorPolicy) HandleStore(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	status := store.StatusOf(err)
	p.log().Debug("store operation failed", Fields{"op": op, "key": key, "status": status.String()})
	if status != store.StatusKeyNotFound && status != store.StatusKeyExists {
		p.log().Warn("store error", Fields{"op": op, "key": key, "err": err})
	}
	p.hooks().StoreFailure(op, key, status, err)

	if p.Throw || ctx.Err() != nil {
		return &StoreError{Op: op, Key: key, Status: status, Err: err}
	}
	return nil
}

// HandleDecode reports a stored payload that failed to decode.
func (p ErrorPolicy) HandleDecode(key string, err error) {
	p.log().Debug("stored payload undecodable; treating as miss", Fields{"key": key, "err": err})
	p.hooks().DecodeFailure(key, err)
}

// HandleRace reports the insert/read eviction race resolved by overwrite.
func (p ErrorPolicy) HandleRace(key string) {
	p.log().Debug("entry vanished between insert and read; stored caller entry", Fields{"key": key})
	p.hooks().RaceFallback(key)
}

func (p ErrorPolicy) log() Logger {
	if p.Logger == nil {
		return NopLogger{}
	}
	return p.Logger
}

func (p ErrorPolicy) hooks() Hooks {
	if p.Hooks == nil {
		return NopHooks{}
	}
	return p.Hooks
}
