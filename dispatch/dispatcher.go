/*
Package dispatch serializes nonce allocation for the proxy's
externally-owned account and manages per-block transaction bundles for
builder-targeted venues.

The nonce counter is guarded by one exclusive lock held across signing and
submission, so two concurrent handlers can never sign different payloads at
the same nonce. The counter only advances when the holder confirms the
submission consumed the nonce; a "nonce too low" rejection leaves it
untouched and the next holder retries the same value.
*/
package dispatch

import (
	"sync"

	"github.com/vortexdex/dexproxy/log"
)

// NonceSource answers the highest nonce currently recorded on any cached
// request. The request cache implements it.
type NonceSource interface {
	MaxNonce() (uint64, bool)
}

// Dispatcher hands out strictly monotonic nonces for one account.
type Dispatcher struct {
	mu   sync.Mutex
	next uint64
}

// NewDispatcher seeds the counter from the cache: one past the highest
// persisted nonce, or start when no cached request carries a nonce yet.
// Seeding from the cache instead of the chain keeps restarts deterministic;
// a submit that landed on chain but missed persistence leaves a benign gap
// the chain expires on its own.
func NewDispatcher(src NonceSource, start uint64) *Dispatcher {
	next := start
	if max, ok := src.MaxNonce(); ok && max+1 > next {
		next = max + 1
	}
	log.Infow("nonce dispatcher initialized", "nextNonce", next)
	return &Dispatcher{next: next}
}

// Lease is an exclusive hold on the nonce counter. The holder signs and
// submits while the lease is open, then either Advances (nonce consumed) or
// Releases without advancing (submission never reached the mempool).
type Lease struct {
	d        *Dispatcher
	nonce    uint64
	released bool
}

// Acquire blocks until the counter lock is free and returns a lease at the
// current nonce. The caller must Release it on every path.
func (d *Dispatcher) Acquire() *Lease {
	d.mu.Lock()
	return &Lease{d: d, nonce: d.next}
}

// Nonce returns the leased value.
func (l *Lease) Nonce() uint64 {
	return l.nonce
}

// Advance marks the nonce consumed, moves the counter past it and releases
// the lock.
func (l *Lease) Advance() {
	if l.released {
		return
	}
	l.d.next = l.nonce + 1
	l.released = true
	l.d.mu.Unlock()
}

// Release returns the lock without advancing the counter. Safe to defer
// after a conditional Advance.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.d.mu.Unlock()
}

// SetNext overrides the counter, used when a handler refreshes the account
// nonce from chain after repeated INVALID_NONCE rejections.
func (d *Dispatcher) SetNext(n uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	log.Warnw("nonce counter reset", "from", d.next, "to", n)
	d.next = n
}

// Peek returns the counter value without locking out concurrent handlers.
// Diagnostic only; never use the result to sign.
func (d *Dispatcher) Peek() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}
