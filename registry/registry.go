/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package registry tracks live client records by identity, a companion set
// of identities still pending the shared-secret handshake, and the active
// connection count, all safe for concurrent use by the Acceptor, the
// Initializer, every connection's Reader, and administrative operations.
package registry

import (
	"sync/atomic"
	"time"

	libatm "github.com/watsongo/wiretcp/atomic"
)

// Record is the subset of Client Record state the registry itself needs to
// manage disposal; the wireserver package supplies the concrete type.
type Record interface {
	Dispose() error
}

// Registry maps client identity to its live Record, and separately tracks
// identities still pending authentication.
type Registry struct {
	clients  libatm.MapTyped[string, Record]
	pending  libatm.MapTyped[string, time.Time]
	active   atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		clients: libatm.NewMapTyped[string, Record](),
		pending: libatm.NewMapTyped[string, time.Time](),
	}
}

// Insert adds rec under identity, disposing and replacing any earlier
// record already present for a reused identity. Increments the active
// count only when no prior record existed.
func (r *Registry) Insert(identity string, rec Record) {
	if prev, loaded := r.clients.Swap(identity, rec); loaded {
		_ = prev.Dispose()
		return
	}
	r.active.Add(1)
}

// Get returns the live record for identity, if any.
func (r *Registry) Get(identity string) (Record, bool) {
	return r.clients.Load(identity)
}

// RemoveRecord deletes identity from the Registry only if rec is still the
// record currently stored there, and decrements the active count and
// clears the pending entry in that case only. A Reader must pass its own
// record, not just the identity: if the identity was reused while this
// Reader's exit path was still pending, Insert has already swapped in a
// newer record, the CompareAndDelete fails, and the newer record (and its
// own pending/auth state) is left untouched. Safe to call more than once
// for the same rec; only the call that actually performs the delete
// decrements the counter.
func (r *Registry) RemoveRecord(identity string, rec Record) {
	if r.clients.CompareAndDelete(identity, rec) {
		r.active.Add(-1)
		r.pending.Delete(identity)
	}
}

// Len returns the number of live client records.
func (r *Registry) Len() int {
	return r.clients.Len()
}

// ActiveCount returns the active-client counter, maintained independently
// of Len() for an O(1) read under heavy churn.
func (r *Registry) ActiveCount() int64 {
	return r.active.Load()
}

// Identities returns a snapshot of every registered identity.
func (r *Registry) Identities() []string {
	out := make([]string, 0, r.clients.Len())
	r.clients.Range(func(key string, _ Record) bool {
		out = append(out, key)
		return true
	})
	return out
}

// MarkPending records identity as awaiting the shared-secret handshake,
// first seen at now.
func (r *Registry) MarkPending(identity string, now time.Time) {
	r.pending.Store(identity, now)
}

// ClearPending removes identity from the pending set, typically once the
// handshake succeeds.
func (r *Registry) ClearPending(identity string) {
	r.pending.Delete(identity)
}

// IsPending reports whether identity is still awaiting authentication.
func (r *Registry) IsPending(identity string) bool {
	_, ok := r.pending.Load(identity)
	return ok
}

// PendingSince returns the timestamp identity was first marked pending.
func (r *Registry) PendingSince(identity string) (time.Time, bool) {
	return r.pending.Load(identity)
}

// PendingIdentities returns a snapshot of identities still awaiting
// authentication, used by the auth-grace-period sweep.
func (r *Registry) PendingIdentities() []string {
	out := make([]string, 0, r.pending.Len())
	r.pending.Range(func(key string, _ time.Time) bool {
		out = append(out, key)
		return true
	})
	return out
}
