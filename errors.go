package distcache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/distcache/store"
)

var (
	// ErrInvalidArgument is returned for an empty key or value. Never retried.
	ErrInvalidArgument = errors.New("distcache: invalid argument")

	// ErrStoreOperationFailed matches every *StoreError.
	ErrStoreOperationFailed = errors.New("distcache: store operation failed")

	// ErrSerialization wraps codec failures on the caller's own values.
	// Undecodable stored payloads are never reported with it: they read as absent.
	ErrSerialization = errors.New("distcache: serialization failure")
)

// Store operation names used in errors, logs and hooks.
const (
	OpGet    = "get"
	OpInsert = "insert"
	OpUpsert = "upsert"
	OpTouch  = "touch"
	OpRemove = "remove"
)

// StoreError is a store call that came back with a non-success status.
type StoreError struct {
	Op     string
	Key    string
	Status store.Status
	Err    error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("distcache: %s %q: %s", e.Op, e.Key, e.Status)
	}
	return fmt.Sprintf("distcache: %s %q: %s: %v", e.Op, e.Key, e.Status, e.Err)
}

func (e *StoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	errs = append(errs, ErrStoreOperationFailed)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func invalidArg(what string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidArgument, what)
}
