package outputcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/codec"
	"github.com/unkn0wn-root/distcache/internal/storetest"
	"github.com/unkn0wn-root/distcache/store"
)

const testPrefix = "Default-Web-Site+/cache-"

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newStringCache(t *testing.T, st store.Store, optsOpt func(*Options[string])) *Cache[string] {
	t.Helper()
	opts := Options[string]{
		Store:  st,
		Codec:  codec.String{},
		Prefix: testPrefix,
		Clock:  func() time.Time { return epoch },
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

type raceHooks struct {
	distcache.NopHooks
	mu     sync.Mutex
	races  int
	errors []store.Status
}

func (h *raceHooks) RaceFallback(string) {
	h.mu.Lock()
	h.races++
	h.mu.Unlock()
}

func (h *raceHooks) StoreFailure(_, _ string, st store.Status, _ error) {
	h.mu.Lock()
	h.errors = append(h.errors, st)
	h.mu.Unlock()
}

// vanishingStore reports every key as taken on insert, then evicts it before
// the follow-up read can see it.
type vanishingStore struct {
	*storetest.Mem
}

func (s vanishingStore) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.Mem.Put(key, []byte("someone else"))
	s.Mem.Evict(key)
	return store.ErrKeyExists
}

// ==============================
// Construction & keys
// ==============================

func TestNewRequiresOptions(t *testing.T) {
	mp := storetest.New()
	bad := []Options[string]{
		{Codec: codec.String{}, Prefix: "p"},
		{Store: mp, Prefix: "p"},
		{Store: mp, Codec: codec.String{}},
	}
	for i, o := range bad {
		if _, err := New(o); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestSanitizeKey(t *testing.T) {
	c := newStringCache(t, storetest.New(), nil)
	a1, a2, b := c.SanitizeKey("a"), c.SanitizeKey("a"), c.SanitizeKey("b")
	if a1 != a2 {
		t.Fatalf("same raw key sanitized differently")
	}
	if a1 == b {
		t.Fatalf("\"a\" and \"b\" collided")
	}
	if a1[:len(testPrefix)] != testPrefix {
		t.Fatalf("missing prefix: %q", a1)
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("Default Web Site", "/shop"); got != "Default-Web-Site+/shopcache-" {
		t.Fatalf("Prefix=%q", got)
	}
}

func TestRawKeyNeverReachesStore(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c := newStringCache(t, mp, nil)

	raw := "GET example.com/products?id=1"
	_, _ = c.Add(ctx, raw, "v", time.Time{})
	_ = c.Set(ctx, raw, "v", time.Time{})
	_, _, _ = c.Get(ctx, raw)
	_ = c.Remove(ctx, raw)

	want := c.SanitizeKey(raw)
	for _, call := range mp.Calls() {
		if call.Key != want {
			t.Fatalf("%s used key %q", call.Op, call.Key)
		}
	}
}

// ==============================
// Add
// ==============================

func TestAddOnAbsentKey(t *testing.T) {
	ctx := context.Background()
	c := newStringCache(t, storetest.New(), nil)

	got, err := c.Add(ctx, "k", "v1", epoch.Add(time.Minute))
	if err != nil || got != "v1" {
		t.Fatalf("Add: got=%q err=%v", got, err)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || v != "v1" {
		t.Fatalf("Get after Add: ok=%v v=%q", ok, v)
	}
}

func TestAddExistingWins(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c := newStringCache(t, mp, nil)

	_, _ = c.Add(ctx, "k", "v1", time.Time{})
	got, err := c.Add(ctx, "k", "v2", time.Time{})
	if err != nil || got != "v1" {
		t.Fatalf("second Add should return v1, got=%q err=%v", got, err)
	}
	if v, _, _ := c.Get(ctx, "k"); v != "v1" {
		t.Fatalf("stored value changed to %q", v)
	}
	for _, call := range mp.Calls() {
		if call.Op == "upsert" {
			t.Fatalf("no overwrite expected when the entry exists")
		}
	}
}

// TestAddRaceFallback: exists on insert, absent on read.
func TestAddRaceFallback(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	hooks := &raceHooks{}
	c := newStringCache(t, vanishingStore{mp}, func(o *Options[string]) { o.Hooks = hooks })

	got, err := c.Add(ctx, "k", "mine", epoch.Add(time.Hour))
	if err != nil || got != "mine" {
		t.Fatalf("Add: got=%q err=%v", got, err)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || v != "mine" {
		t.Fatalf("key must hold the caller's entry, ok=%v v=%q", ok, v)
	}
	if hooks.races != 1 {
		t.Fatalf("race not reported once: %d", hooks.races)
	}

	var ops []string
	for _, call := range mp.Calls() {
		ops = append(ops, call.Op)
	}
	// insert is handled by the wrapper, so the Mem sees: get, upsert, get
	if fmt.Sprint(ops) != "[get upsert get]" {
		t.Fatalf("unexpected call sequence %v", ops)
	}
	if ttl, _ := mp.TTL(c.SanitizeKey("k")); ttl != time.Hour {
		t.Fatalf("fallback ttl=%v", ttl)
	}
}

func TestAddUndecodableExistingIsReplaced(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c, err := New(Options[Response]{Store: mp, Codec: codec.Msgpack[Response]{}, Prefix: testPrefix})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mp.Put(c.SanitizeKey("k"), []byte{0xc1}) // never-used msgpack code

	entry := Response{Status: 200, Body: []byte("fresh")}
	got, err := c.Add(ctx, "k", entry, time.Time{})
	if err != nil || string(got.Body) != "fresh" {
		t.Fatalf("Add: got=%+v err=%v", got, err)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || string(v.Body) != "fresh" {
		t.Fatalf("corrupt entry not replaced: ok=%v v=%+v", ok, v)
	}
}

func TestAddEmptyExistingIsReplaced(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c := newStringCache(t, mp, nil)
	mp.Put(c.SanitizeKey("k"), []byte{})

	if got, _ := c.Add(ctx, "k", "v", time.Time{}); got != "v" {
		t.Fatalf("got %q", got)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("ok=%v v=%q", ok, v)
	}
}

func TestAddReadFailureDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	hooks := &raceHooks{}
	c := newStringCache(t, mp, func(o *Options[string]) { o.Hooks = hooks })
	_, _ = c.Add(ctx, "k", "v1", time.Time{})

	boom := errors.New("node down")
	mp.Fail = func(op, _ string) error {
		if op == "get" {
			return boom
		}
		return nil
	}
	got, err := c.Add(ctx, "k", "v2", time.Time{})
	if err != nil || got != "v2" {
		t.Fatalf("degraded Add should return the entry, got=%q err=%v", got, err)
	}
	mp.Fail = nil
	if v, _, _ := c.Get(ctx, "k"); v != "v1" {
		t.Fatalf("read failure must not trigger the fallback write, stored=%q", v)
	}
	if hooks.races != 0 || len(hooks.errors) != 1 {
		t.Fatalf("races=%d errors=%v", hooks.races, hooks.errors)
	}
}

func TestAddInsertFailureFollowsPolicy(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	boom := errors.New("node down")
	mp.Fail = func(string, string) error { return boom }

	quiet := newStringCache(t, mp, nil)
	if got, err := quiet.Add(ctx, "k", "v", time.Time{}); err != nil || got != "v" {
		t.Fatalf("got=%q err=%v", got, err)
	}

	strict := newStringCache(t, mp, func(o *Options[string]) { o.ThrowOnStoreError = true })
	_, err := strict.Add(ctx, "k", "v", time.Time{})
	var se *distcache.StoreError
	if !errors.As(err, &se) || se.Op != distcache.OpInsert || !errors.Is(err, boom) {
		t.Fatalf("expected insert StoreError, got %v", err)
	}
}

func TestAddConcurrentConverges(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c := newStringCache(t, mp, nil)

	const n = 32
	results := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			v, err := c.Add(ctx, "page", fmt.Sprintf("render-%d", i), time.Time{})
			results[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stored, ok, _ := c.Get(ctx, "page")
	if !ok {
		t.Fatalf("key absent after concurrent Adds")
	}
	for i, v := range results {
		if v != stored {
			t.Fatalf("caller %d got %q, stored %q", i, v, stored)
		}
	}
}

// ==============================
// Expiry
// ==============================

func TestExpiryToTTL(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c := newStringCache(t, mp, nil)
	key := c.SanitizeKey("k")

	cases := []struct {
		name string
		exp  time.Time
		want time.Duration
	}{
		{"zero is infinite", time.Time{}, distcache.Infinite},
		{"future", epoch.Add(10 * time.Minute), 10 * time.Minute},
		{"local zone", epoch.Add(time.Minute).In(time.FixedZone("X", -5*3600)), time.Minute},
		{"past clamps", epoch.Add(-time.Minute), distcache.MinLifetime},
	}
	for _, tc := range cases {
		if err := c.Set(ctx, "k", "v", tc.exp); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got, _ := mp.TTL(key); got != tc.want {
			t.Fatalf("%s: ttl=%v want %v", tc.name, got, tc.want)
		}
	}
}

// ==============================
// Get / Set / Remove
// ==============================

func TestSetOverwritesAndRemove(t *testing.T) {
	ctx := context.Background()
	c := newStringCache(t, storetest.New(), nil)

	_, _ = c.Add(ctx, "k", "v1", time.Time{})
	if err := c.Set(ctx, "k", "v2", time.Time{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _, _ := c.Get(ctx, "k"); v != "v2" {
		t.Fatalf("Set did not overwrite: %q", v)
	}
	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after remove")
	}
	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	mp := storetest.New()
	mp.Fail = func(string, string) error { calls.Add(1); return nil }
	c := newStringCache(t, mp, nil)

	if _, err := c.Add(ctx, "", "v", time.Time{}); !errors.Is(err, distcache.ErrInvalidArgument) {
		t.Fatalf("Add: %v", err)
	}
	if _, _, err := c.Get(ctx, ""); !errors.Is(err, distcache.ErrInvalidArgument) {
		t.Fatalf("Get: %v", err)
	}
	if err := c.Set(ctx, "", "v", time.Time{}); !errors.Is(err, distcache.ErrInvalidArgument) {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Remove(ctx, ""); !errors.Is(err, distcache.ErrInvalidArgument) {
		t.Fatalf("Remove: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("store was called %d times", calls.Load())
	}
}

func TestEmptyEncodingRejected(t *testing.T) {
	ctx := context.Background()
	mp := storetest.New()
	c := newStringCache(t, mp, nil)

	if err := c.Set(ctx, "k", "", time.Time{}); !errors.Is(err, distcache.ErrInvalidArgument) {
		t.Fatalf("Set empty: %v", err)
	}
	if got, err := c.Add(ctx, "k", "", time.Time{}); !errors.Is(err, distcache.ErrInvalidArgument) || got != "" {
		t.Fatalf("Add empty: got=%q err=%v", got, err)
	}
	if n := len(mp.Calls()); n != 0 {
		t.Fatalf("store was called %d times", n)
	}

	// an existing value still wins over a later Add
	if got, err := c.Add(ctx, "k", "v1", time.Time{}); err != nil || got != "v1" {
		t.Fatalf("Add v1: got=%q err=%v", got, err)
	}
	if got, err := c.Add(ctx, "k", "v2", time.Time{}); err != nil || got != "v1" {
		t.Fatalf("Add v2: got=%q err=%v", got, err)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || v != "v1" {
		t.Fatalf("stored: ok=%v v=%q", ok, v)
	}
}
