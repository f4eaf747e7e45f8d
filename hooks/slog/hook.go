// Package sloghook emits typedcache hook events through log/slog.
//
// Keys are redacted (SHA-256 prefix) before logging since user keys may
// carry identifiers. High-frequency events can be sampled.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/typedcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	LoadSharedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	loadSharedCtr atomic.Uint64
}

var _ typedcache.Hooks = (*Hooks)(nil)

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

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("typedcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StoreSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("typedcache.store_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) LoadShared(key string) {
	if h.l == nil || !sample(h.opts.LoadSharedEvery, &h.loadSharedCtr) {
		return
	}
	h.l.Debug("typedcache.load_shared",
		"key", h.redact(key))
}

func (h *Hooks) LoadError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("typedcache.load_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) LoadDiscarded(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("typedcache.load_discarded",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) EpochError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("typedcache.epoch_error",
		"op", op,
		"err", err)
}
