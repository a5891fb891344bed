// Package sloghooks implements distcache.Hooks by logging to a *slog.Logger.
// Storage keys are redacted; noisy events can be sampled.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/store"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StoreFailureEvery  uint64
	DecodeFailureEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	storeCtr  atomic.Uint64
	decodeCtr atomic.Uint64
}

var _ distcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// StoreFailure logs misses on Touch/Remove at debug and real failures at warn.
func (h *Hooks) StoreFailure(op, storageKey string, status store.Status, err error) {
	if h.l == nil || !sample(h.opts.StoreFailureEvery, &h.storeCtr) {
		return
	}
	level := slog.LevelWarn
	if status == store.StatusKeyNotFound || status == store.StatusKeyExists {
		level = slog.LevelDebug
	}
	h.l.Log(context.Background(), level, "distcache.store_failure",
		"op", op,
		"key", h.redact(storageKey),
		"status", status.String(),
		"err", err)
}

func (h *Hooks) DecodeFailure(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.DecodeFailureEvery, &h.decodeCtr) {
		return
	}
	h.l.Info("distcache.decode_failure",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) RaceFallback(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Info("distcache.race_fallback",
		"key", h.redact(storageKey))
}
