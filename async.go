package distcache

import "context"

// Future is the pending result of an async cache call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is ready or ctx is done. Giving up on Wait does
// not cancel the store call; cancel the ctx passed to the async method for that.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetAsync resolves to the value, or nil when the key is absent.
func (c *Cache) GetAsync(ctx context.Context, key string) *Future[[]byte] {
	return goFuture(func() ([]byte, error) {
		v, _, err := c.Get(ctx, key)
		return v, err
	})
}

func (c *Cache) SetAsync(ctx context.Context, key string, value []byte, opts *EntryOptions) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		return struct{}{}, c.Set(ctx, key, value, opts)
	})
}

func (c *Cache) RefreshAsync(ctx context.Context, key string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		return struct{}{}, c.Refresh(ctx, key)
	})
}

func (c *Cache) RemoveAsync(ctx context.Context, key string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		return struct{}{}, c.Remove(ctx, key)
	})
}
