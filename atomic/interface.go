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
 *
 */

// Package atomic provides lock-free, generic map types. The registry package
// builds the Registry and Unauthenticated set on top of MapTyped so that
// concurrent insert/remove/lookup never needs an external mutex.
package atomic

// Map is a concurrency-safe, untyped map keyed by a comparable type. It is
// the building block MapTyped wraps.
type Map[K comparable] interface {
	Load(key K) (value any, ok bool)
	Store(key K, value any)
	LoadOrStore(key K, value any) (actual any, loaded bool)
	LoadAndDelete(key K) (value any, loaded bool)
	Delete(key K)
	Swap(key K, value any) (previous any, loaded bool)
	CompareAndSwap(key K, old, new any) bool
	CompareAndDelete(key K, old any) (deleted bool)
	Range(f func(key K, value any) bool)
}

// MapTyped is a concurrency-safe map keyed by K storing values of type V.
// A value that fails its type assertion during Range is dropped from the
// underlying store rather than surfaced, so a corrupted entry cannot wedge
// iteration.
type MapTyped[K comparable, V any] interface {
	Load(key K) (value V, ok bool)
	Store(key K, value V)
	LoadOrStore(key K, value V) (actual V, loaded bool)
	LoadAndDelete(key K) (value V, loaded bool)
	Delete(key K)
	Swap(key K, value V) (previous V, loaded bool)
	CompareAndSwap(key K, old, new V) bool
	CompareAndDelete(key K, old V) (deleted bool)
	Range(f func(key K, value V) bool)
	// Len returns a point-in-time count of entries. O(n); meant for
	// diagnostics and invariant checks in tests, not the hot path.
	Len() int
}

// NewMapAny returns a Map keyed by K, backed by a sync.Map.
func NewMapAny[K comparable]() Map[K] {
	return &ma[K]{}
}

// NewMapTyped returns a MapTyped keyed by K storing values of type V.
func NewMapTyped[K comparable, V any]() MapTyped[K, V] {
	return &mt[K, V]{
		m: NewMapAny[K](),
	}
}
